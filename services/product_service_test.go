package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"aucmart_go/aucerrors"
	"aucmart_go/config"
	"aucmart_go/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 使用内存SQLite替换全局数据库连接
// 单连接让并发事务串行执行，模拟版本冲突时的排队行为
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Product{},
		&models.Bid{},
		&models.AuctionMember{},
		&models.Rating{},
		&models.Favorite{},
	))

	config.DB = db
	config.RedisClient = nil
}

// fakeNotifier 记录推送事件
type fakeNotifier struct {
	mu            sync.Mutex
	productEvents []string
	userEvents    map[uint][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{userEvents: make(map[uint][]string)}
}

func (f *fakeNotifier) PublishProduct(productID uint, event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productEvents = append(f.productEvents, event)
}

func (f *fakeNotifier) PublishUser(userID uint, event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userEvents[userID] = append(f.userEvents[userID], event)
}

func (f *fakeNotifier) productEventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.productEvents)
}

func (f *fakeNotifier) userEventCount(userID uint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.userEvents[userID])
}

func newTestService(t *testing.T) (*ProductService, *fakeNotifier) {
	t.Helper()
	setupTestDB(t)
	notifier := newFakeNotifier()
	return NewProductService(notifier, NopMailer{}), notifier
}

// createUser 创建测试用户
// rated为true时表示有评价记录且信誉分满分，可以直接出价
func createUser(t *testing.T, email string, rated bool) *models.User {
	t.Helper()
	user := &models.User{
		Email:       email,
		FullName:    "测试用户" + email,
		Password:    "hashed",
		Role:        models.RoleUser,
		AccountType: models.AccountTypeBidder,
		Point:       100,
		Activated:   true,
	}
	if rated {
		user.RatingCount = 1
	}
	require.NoError(t, config.DB.Create(user).Error)
	return user
}

func createSeller(t *testing.T, email string) *models.User {
	t.Helper()
	seller := createUser(t, email, true)
	require.NoError(t, config.DB.Model(seller).Update("account_type", models.AccountTypeSeller).Error)
	seller.AccountType = models.AccountTypeSeller
	return seller
}

type productOptions struct {
	startingPrice int64
	priceStep     int64
	buyPrice      *int64
	autoRenew     bool
	expiry        time.Time
}

func createProduct(t *testing.T, sellerID uint, opts productOptions) *models.Product {
	t.Helper()
	category := &models.Category{Name: "电子产品"}
	require.NoError(t, config.DB.Create(category).Error)

	if opts.startingPrice == 0 {
		opts.startingPrice = 1000
	}
	if opts.priceStep == 0 {
		opts.priceStep = 100
	}
	if opts.expiry.IsZero() {
		opts.expiry = time.Now().Add(24 * time.Hour)
	}
	product := &models.Product{
		Name:          "测试商品",
		Slug:          "test-product",
		Description:   "测试描述",
		CategoryID:    category.ID,
		Images:        `["a.jpg","b.jpg","c.jpg"]`,
		StartingPrice: opts.startingPrice,
		PriceStep:     opts.priceStep,
		BuyPrice:      opts.buyPrice,
		AutoRenew:     opts.autoRenew,
		SellerID:      sellerID,
		Expiry:        opts.expiry,
	}
	require.NoError(t, config.DB.Create(product).Error)
	return product
}

func reloadProduct(t *testing.T, id uint) *models.Product {
	t.Helper()
	var product models.Product
	require.NoError(t, config.DB.First(&product, id).Error)
	return &product
}

// ==================== 出价 ====================

func TestPlaceBidFirstBidRevealed(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	bidder := createUser(t, "bidder@test.com", true)
	product := createProduct(t, seller.ID, productOptions{})

	result, err := ps.PlaceBid(product.ID, bidder.ID, 1200)
	require.NoError(t, err)

	// 首次出价完全揭示
	assert.Equal(t, int64(1200), result.DisplayPrice)
	assert.Equal(t, int64(1200), result.CurrentPrice)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, bidder.ID, *result.WinnerID)
	assert.Equal(t, 1, result.BidCount)
	assert.False(t, result.Ended)
}

func TestPlaceBidSecondBidShadesInternalPrice(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	u1 := createUser(t, "u1@test.com", true)
	u2 := createUser(t, "u2@test.com", true)
	product := createProduct(t, seller.ID, productOptions{startingPrice: 1000, priceStep: 100})

	_, err := ps.PlaceBid(product.ID, u1.ID, 1000)
	require.NoError(t, err)

	result, err := ps.PlaceBid(product.ID, u2.ID, 1500)
	require.NoError(t, err)

	// 展示价 = 前领先者内部价 + 步长，真实出价保持隐藏
	assert.Equal(t, int64(1100), result.DisplayPrice)
	assert.Equal(t, int64(1500), result.CurrentPrice)
	assert.Equal(t, u2.ID, *result.WinnerID)
	assert.Equal(t, 2, result.BidCount)
}

func TestPlaceBidOutbidByHigherPrice(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	u1 := createUser(t, "u1@test.com", true)
	u2 := createUser(t, "u2@test.com", true)
	u3 := createUser(t, "u3@test.com", true)
	product := createProduct(t, seller.ID, productOptions{startingPrice: 1000, priceStep: 100})

	_, err := ps.PlaceBid(product.ID, u1.ID, 1000)
	require.NoError(t, err)
	_, err = ps.PlaceBid(product.ID, u2.ID, 2000)
	require.NoError(t, err)

	result, err := ps.PlaceBid(product.ID, u3.ID, 1500)
	assert.ErrorIs(t, err, aucerrors.ErrOutbidByHigherPrice)

	// 落败的出价把展示价推高到落败价，领先者不变，不产生出价记录
	require.NotNil(t, result)
	assert.Equal(t, int64(1500), result.DisplayPrice)
	assert.Equal(t, int64(2000), result.CurrentPrice)
	assert.Equal(t, u2.ID, *result.WinnerID)
	assert.Equal(t, 2, result.BidCount)

	var bidCount int64
	config.DB.Model(&models.Bid{}).Where("product_id = ?", product.ID).Count(&bidCount)
	assert.Equal(t, int64(2), bidCount)
}

func TestPlaceBidInsufficientIncrement(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	u1 := createUser(t, "u1@test.com", true)
	u2 := createUser(t, "u2@test.com", true)
	product := createProduct(t, seller.ID, productOptions{startingPrice: 1000, priceStep: 100})

	_, err := ps.PlaceBid(product.ID, u1.ID, 2000)
	require.NoError(t, err)

	// 超过内部价但不足一个步长
	result, err := ps.PlaceBid(product.ID, u2.ID, 2050)
	assert.ErrorIs(t, err, aucerrors.ErrInsufficientIncrement)

	// 展示价完全揭示到内部价
	assert.Equal(t, int64(2000), result.DisplayPrice)
	assert.Equal(t, int64(2000), result.CurrentPrice)
	assert.Equal(t, u1.ID, *result.WinnerID)
}

func TestPlaceBidBelowStartingPrice(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	bidder := createUser(t, "bidder@test.com", true)
	product := createProduct(t, seller.ID, productOptions{startingPrice: 1000})

	_, err := ps.PlaceBid(product.ID, bidder.ID, 500)
	assert.ErrorIs(t, err, aucerrors.ErrBelowStartingPrice)

	fresh := reloadProduct(t, product.ID)
	assert.Equal(t, 0, fresh.BidCount)
	assert.Nil(t, fresh.WinnerID)
}

func TestPlaceBidInstantBuy(t *testing.T) {
	ps, notifier := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	bidder := createUser(t, "bidder@test.com", true)
	buyPrice := int64(3000)
	product := createProduct(t, seller.ID, productOptions{startingPrice: 1000, buyPrice: &buyPrice})

	// 超出一口价的出价按一口价成交
	result, err := ps.PlaceBid(product.ID, bidder.ID, 3500)
	require.NoError(t, err)

	assert.True(t, result.Ended)
	assert.Equal(t, buyPrice, result.CurrentPrice)
	assert.Equal(t, buyPrice, result.DisplayPrice)
	assert.Equal(t, bidder.ID, *result.WinnerID)

	var bid models.Bid
	require.NoError(t, config.DB.Where("product_id = ?", product.ID).First(&bid).Error)
	assert.Equal(t, buyPrice, bid.Price)

	// 结束通知发给双方
	assert.GreaterOrEqual(t, notifier.userEventCount(seller.ID), 1)
	assert.GreaterOrEqual(t, notifier.userEventCount(bidder.ID), 1)

	// 结束后再出价被拒绝
	_, err = ps.PlaceBid(product.ID, bidder.ID, 5000)
	assert.ErrorIs(t, err, aucerrors.ErrAuctionClosed)
}

func TestPlaceBidAutoRenewExtendsExpiry(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	u1 := createUser(t, "u1@test.com", true)
	u2 := createUser(t, "u2@test.com", true)
	expiry := time.Now().Add(2 * time.Minute)
	product := createProduct(t, seller.ID, productOptions{autoRenew: true, expiry: expiry})

	_, err := ps.PlaceBid(product.ID, u1.ID, 1000)
	require.NoError(t, err)

	fresh := reloadProduct(t, product.ID)
	firstExtended := fresh.Expiry
	assert.WithinDuration(t, expiry.Add(10*time.Minute), firstExtended, 2*time.Second)

	// 延长后的截止仍在窗口内，可以再次触发
	require.NoError(t, config.DB.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("expiry", time.Now().Add(time.Minute)).Error)

	_, err = ps.PlaceBid(product.ID, u2.ID, 2000)
	require.NoError(t, err)

	fresh = reloadProduct(t, product.ID)
	assert.True(t, fresh.Expiry.After(time.Now().Add(9*time.Minute)))
}

func TestPlaceBidNoAutoRenewOutsideWindow(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	bidder := createUser(t, "bidder@test.com", true)
	expiry := time.Now().Add(24 * time.Hour)
	product := createProduct(t, seller.ID, productOptions{autoRenew: true, expiry: expiry})

	_, err := ps.PlaceBid(product.ID, bidder.ID, 1000)
	require.NoError(t, err)

	fresh := reloadProduct(t, product.ID)
	assert.WithinDuration(t, expiry, fresh.Expiry, 2*time.Second)
}

// ==================== 出价资格 ====================

func TestPlaceBidEligibility(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	product := createProduct(t, seller.ID, productOptions{})

	t.Run("卖家不能竞拍自己的商品", func(t *testing.T) {
		_, err := ps.PlaceBid(product.ID, seller.ID, 1500)
		assert.ErrorIs(t, err, aucerrors.ErrSelfBidForbidden)
	})

	t.Run("信誉分过低被拒绝", func(t *testing.T) {
		lowTrust := createUser(t, "low@test.com", true)
		require.NoError(t, config.DB.Model(lowTrust).Update("point", 50).Error)
		_, err := ps.PlaceBid(product.ID, lowTrust.ID, 1500)
		assert.ErrorIs(t, err, aucerrors.ErrTrustTooLow)
	})

	t.Run("无评价记录需要白名单", func(t *testing.T) {
		unrated := createUser(t, "unrated@test.com", false)
		_, err := ps.PlaceBid(product.ID, unrated.ID, 1500)
		assert.ErrorIs(t, err, aucerrors.ErrNotWhitelisted)

		// 进入白名单后可以出价
		require.NoError(t, config.DB.Create(&models.AuctionMember{
			ProductID: product.ID,
			UserID:    unrated.ID,
			Status:    models.MemberStatusWhitelisted,
		}).Error)
		_, err = ps.PlaceBid(product.ID, unrated.ID, 1500)
		assert.NoError(t, err)
	})

	t.Run("黑名单无条件拒绝", func(t *testing.T) {
		banned := createUser(t, "banned@test.com", true)
		require.NoError(t, config.DB.Create(&models.AuctionMember{
			ProductID: product.ID,
			UserID:    banned.ID,
			Status:    models.MemberStatusBlacklisted,
		}).Error)
		_, err := ps.PlaceBid(product.ID, banned.ID, 5000)
		assert.ErrorIs(t, err, aucerrors.ErrBlacklisted)
	})
}

// ==================== 资格申请与审批 ====================

func TestRequestAndApproveBid(t *testing.T) {
	ps, notifier := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	unrated := createUser(t, "unrated@test.com", false)
	product := createProduct(t, seller.ID, productOptions{})

	require.NoError(t, ps.RequestBid(product.ID, unrated.ID))
	assert.GreaterOrEqual(t, notifier.userEventCount(seller.ID), 1)

	// 重复申请被拒绝
	assert.ErrorIs(t, ps.RequestBid(product.ID, unrated.ID), aucerrors.ErrAlreadyRequested)

	// 卖家以外的人不能审批
	other := createUser(t, "other@test.com", true)
	assert.ErrorIs(t, ps.ApproveBid(product.ID, other.ID, unrated.ID, true), aucerrors.ErrForbidden)

	require.NoError(t, ps.ApproveBid(product.ID, seller.ID, unrated.ID, true))

	var member models.AuctionMember
	require.NoError(t, config.DB.Where("product_id = ? AND user_id = ?", product.ID, unrated.ID).
		First(&member).Error)
	assert.Equal(t, models.MemberStatusWhitelisted, member.Status)

	// 已在白名单，再次申请被拒绝；重复审批是无操作
	assert.ErrorIs(t, ps.RequestBid(product.ID, unrated.ID), aucerrors.ErrAlreadyWhitelisted)
	assert.NoError(t, ps.ApproveBid(product.ID, seller.ID, unrated.ID, true))

	// 白名单用户可以出价
	_, err := ps.PlaceBid(product.ID, unrated.ID, 1500)
	assert.NoError(t, err)
}

func TestApproveBidReject(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	unrated := createUser(t, "unrated@test.com", false)
	product := createProduct(t, seller.ID, productOptions{})

	require.NoError(t, ps.RequestBid(product.ID, unrated.ID))
	require.NoError(t, ps.ApproveBid(product.ID, seller.ID, unrated.ID, false))

	// 被拒后记录删除，可以重新申请
	var count int64
	config.DB.Model(&models.AuctionMember{}).
		Where("product_id = ? AND user_id = ?", product.ID, unrated.ID).Count(&count)
	assert.Equal(t, int64(0), count)
	assert.NoError(t, ps.RequestBid(product.ID, unrated.ID))
}

// ==================== 拒绝出价者与领先者重算 ====================

func TestDenyBidRecomputesWinner(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	u1 := createUser(t, "u1@test.com", true)
	u2 := createUser(t, "u2@test.com", true)
	u3 := createUser(t, "u3@test.com", true)
	product := createProduct(t, seller.ID, productOptions{startingPrice: 1000, priceStep: 100})

	_, err := ps.PlaceBid(product.ID, u1.ID, 1000)
	require.NoError(t, err)
	_, err = ps.PlaceBid(product.ID, u2.ID, 2000)
	require.NoError(t, err)
	_, err = ps.PlaceBid(product.ID, u3.ID, 3000)
	require.NoError(t, err)

	// 拒绝当前领先者u3，领先权退回u2，价格完全揭示为u2的出价
	require.NoError(t, ps.DenyBid(product.ID, seller.ID, u3.ID))
	fresh := reloadProduct(t, product.ID)
	require.NotNil(t, fresh.WinnerID)
	assert.Equal(t, u2.ID, *fresh.WinnerID)
	assert.Equal(t, int64(2000), fresh.CurrentPrice)
	assert.Equal(t, int64(2000), fresh.DisplayPrice)

	// u3的出价全部作废
	var deniedCount int64
	config.DB.Model(&models.Bid{}).
		Where("product_id = ? AND bidder_id = ? AND status = ?", product.ID, u3.ID, models.BidStatusDenied).
		Count(&deniedCount)
	assert.Equal(t, int64(1), deniedCount)

	// 重复拒绝报错
	assert.ErrorIs(t, ps.DenyBid(product.ID, seller.ID, u3.ID), aucerrors.ErrAlreadyDenied)

	// 继续拒绝u2退回u1
	require.NoError(t, ps.DenyBid(product.ID, seller.ID, u2.ID))
	fresh = reloadProduct(t, product.ID)
	assert.Equal(t, u1.ID, *fresh.WinnerID)
	assert.Equal(t, int64(1000), fresh.CurrentPrice)

	// 最后一个出价者也被拒绝后回到起拍状态
	require.NoError(t, ps.DenyBid(product.ID, seller.ID, u1.ID))
	fresh = reloadProduct(t, product.ID)
	assert.Nil(t, fresh.WinnerID)
	assert.Equal(t, int64(1000), fresh.CurrentPrice)
	assert.Equal(t, int64(1000), fresh.DisplayPrice)

	// 被拒绝者不能再出价
	_, err = ps.PlaceBid(product.ID, u3.ID, 5000)
	assert.ErrorIs(t, err, aucerrors.ErrBlacklisted)
}

// ==================== 到期结算 ====================

func TestSweepExpiredAuctions(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	u1 := createUser(t, "u1@test.com", true)
	u2 := createUser(t, "u2@test.com", true)
	product := createProduct(t, seller.ID, productOptions{startingPrice: 1000, priceStep: 100})

	_, err := ps.PlaceBid(product.ID, u1.ID, 1000)
	require.NoError(t, err)
	_, err = ps.PlaceBid(product.ID, u2.ID, 2000)
	require.NoError(t, err)

	// 模拟过期
	require.NoError(t, config.DB.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("expiry", time.Now().Add(-time.Minute)).Error)

	finalized, err := ps.SweepExpiredAuctions()
	require.NoError(t, err)
	assert.Equal(t, 1, finalized)

	fresh := reloadProduct(t, product.ID)
	assert.True(t, fresh.Ended)
	// 结束后内部价收敛到展示价
	assert.Equal(t, fresh.DisplayPrice, fresh.CurrentPrice)
	assert.Equal(t, int64(1100), fresh.DisplayPrice)
	assert.Equal(t, u2.ID, *fresh.WinnerID)

	// 获胜出价被回填为最终成交价
	var best models.Bid
	require.NoError(t, config.DB.Where("product_id = ? AND bidder_id = ?", product.ID, u2.ID).
		Order("price DESC").First(&best).Error)
	assert.Equal(t, int64(1100), best.Price)

	// 重复清扫是幂等的
	finalized, err = ps.SweepExpiredAuctions()
	require.NoError(t, err)
	assert.Equal(t, 0, finalized)
}

func TestSweepNoBidAuction(t *testing.T) {
	ps, notifier := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	product := createProduct(t, seller.ID, productOptions{
		expiry: time.Now().Add(time.Second),
	})
	require.NoError(t, config.DB.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("expiry", time.Now().Add(-time.Minute)).Error)

	finalized, err := ps.SweepExpiredAuctions()
	require.NoError(t, err)
	assert.Equal(t, 1, finalized)

	fresh := reloadProduct(t, product.ID)
	assert.True(t, fresh.Ended)
	assert.Nil(t, fresh.WinnerID)
	assert.Equal(t, fresh.StartingPrice, fresh.DisplayPrice)

	// 流拍通知卖家
	assert.GreaterOrEqual(t, notifier.userEventCount(seller.ID), 1)
}

// ==================== 评价 ====================

func TestCreateRating(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	winner := createUser(t, "winner@test.com", true)
	product := createProduct(t, seller.ID, productOptions{})

	_, err := ps.PlaceBid(product.ID, winner.ID, 1500)
	require.NoError(t, err)

	// 拍卖未结束不能评价
	_, err = ps.CreateRating(product.ID, seller.ID, &CreateRatingRequest{
		Type: models.RatingTypePositive, Comment: "交易顺利",
	})
	assert.ErrorIs(t, err, aucerrors.ErrAuctionNotEnded)

	require.NoError(t, config.DB.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("ended", true).Error)

	// 非交易双方不能评价
	stranger := createUser(t, "stranger@test.com", true)
	_, err = ps.CreateRating(product.ID, stranger.ID, &CreateRatingRequest{
		Type: models.RatingTypePositive, Comment: "不错",
	})
	assert.ErrorIs(t, err, aucerrors.ErrNotParticipant)

	// 卖家好评买家
	rating, err := ps.CreateRating(product.ID, seller.ID, &CreateRatingRequest{
		Type: models.RatingTypePositive, Comment: "买家很爽快",
	})
	require.NoError(t, err)
	assert.Equal(t, winner.ID, rating.TargetID)

	var ratedWinner models.User
	require.NoError(t, config.DB.First(&ratedWinner, winner.ID).Error)
	assert.Equal(t, 100, ratedWinner.Point)
	assert.Equal(t, 2, ratedWinner.RatingCount)

	fresh := reloadProduct(t, product.ID)
	require.NotNil(t, fresh.WinnerRatingID)
	assert.Equal(t, rating.ID, *fresh.WinnerRatingID)

	// 重复评价被拒绝
	_, err = ps.CreateRating(product.ID, seller.ID, &CreateRatingRequest{
		Type: models.RatingTypeNegative, Comment: "改主意了",
	})
	assert.ErrorIs(t, err, aucerrors.ErrAlreadyRated)

	// 买家差评卖家
	rating, err = ps.CreateRating(product.ID, winner.ID, &CreateRatingRequest{
		Type: models.RatingTypeNegative, Comment: "商品与描述不符",
	})
	require.NoError(t, err)
	assert.Equal(t, seller.ID, rating.TargetID)

	var ratedSeller models.User
	require.NoError(t, config.DB.First(&ratedSeller, seller.ID).Error)
	// 1条差评，没有好评记录时信誉分归零
	assert.Equal(t, 0, ratedSeller.Point)

	fresh = reloadProduct(t, product.ID)
	require.NotNil(t, fresh.SellerRatingID)
}

func TestCreateRatingNoWinner(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	product := createProduct(t, seller.ID, productOptions{})
	require.NoError(t, config.DB.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("ended", true).Error)

	_, err := ps.CreateRating(product.ID, seller.ID, &CreateRatingRequest{
		Type: models.RatingTypePositive, Comment: "无人购买",
	})
	assert.ErrorIs(t, err, aucerrors.ErrNoWinner)
}

// ==================== 并发出价 ====================

func TestConcurrentBidsNoLostUpdate(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	product := createProduct(t, seller.ID, productOptions{startingPrice: 1000, priceStep: 100})

	const bidders = 5
	users := make([]*models.User, bidders)
	for i := 0; i < bidders; i++ {
		users[i] = createUser(t, fmt.Sprintf("c%d@test.com", i), true)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			price := int64(1000 + idx*500)
			_, err := ps.PlaceBid(product.ID, users[idx].ID, price)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	fresh := reloadProduct(t, product.ID)

	// 成功的出价一条不少
	assert.Equal(t, accepted, fresh.BidCount)
	var bidCount int64
	config.DB.Model(&models.Bid{}).
		Where("product_id = ? AND status = ?", product.ID, models.BidStatusAccepted).
		Count(&bidCount)
	assert.Equal(t, int64(accepted), bidCount)

	// 内部价等于已接受出价中的最高价
	var best models.Bid
	require.NoError(t, config.DB.Where("product_id = ? AND status = ?", product.ID, models.BidStatusAccepted).
		Order("price DESC").First(&best).Error)
	assert.Equal(t, best.Price, fresh.CurrentPrice)
	assert.Equal(t, best.BidderID, *fresh.WinnerID)
	assert.GreaterOrEqual(t, accepted, 1)
}

func TestPlaceBidReturnsCommittedStateWhenReloadFails(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	bidder := createUser(t, "bidder@test.com", true)
	product := createProduct(t, seller.ID, productOptions{startingPrice: 1000, priceStep: 100})

	// 让事务提交后的补充读取（带Preload的那次）失败
	failReload := false
	require.NoError(t, config.DB.Callback().Query().Before("gorm:query").
		Register("drop_reload_queries", func(db *gorm.DB) {
			if failReload && len(db.Statement.Preloads) > 0 {
				db.AddError(gorm.ErrInvalidDB)
			}
		}))

	failReload = true
	result, err := ps.PlaceBid(product.ID, bidder.ID, 1500)
	failReload = false

	// 出价已提交，读取失败不能当作出价失败上报
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int64(1500), result.CurrentPrice)
	assert.Equal(t, int64(1500), result.DisplayPrice)
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, bidder.ID, *result.WinnerID)
	assert.Equal(t, 1, result.BidCount)

	fresh := reloadProduct(t, product.ID)
	assert.Equal(t, 1, fresh.BidCount)
	assert.Equal(t, bidder.ID, *fresh.WinnerID)

	// 竞价结果路径同样返回已提交的展示价调整
	rival := createUser(t, "rival@test.com", true)
	failReload = true
	result, err = ps.PlaceBid(product.ID, rival.ID, 1200)
	failReload = false
	assert.ErrorIs(t, err, aucerrors.ErrOutbidByHigherPrice)
	require.NotNil(t, result)
	assert.Equal(t, int64(1200), result.DisplayPrice)
	assert.Equal(t, bidder.ID, *result.WinnerID)
}

func TestFinalizeRetriesAfterConcurrentVersionBump(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	bidder := createUser(t, "bidder@test.com", true)
	product := createProduct(t, seller.ID, productOptions{startingPrice: 1000, priceStep: 100})

	_, err := ps.PlaceBid(product.ID, bidder.ID, 1500)
	require.NoError(t, err)
	require.NoError(t, config.DB.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("expiry", time.Now().Add(-time.Minute)).Error)

	// 拿到过期商品的快照后，一次并发的资格变更抢先提交了版本号
	stale := reloadProduct(t, product.ID)
	require.NoError(t, config.DB.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("version", gorm.Expr("version + 1")).Error)

	// 非结算性的版本冲突不会让结算被跳过
	require.NoError(t, ps.finalizeAuction(stale))

	fresh := reloadProduct(t, product.ID)
	assert.True(t, fresh.Ended)
	assert.Equal(t, fresh.DisplayPrice, fresh.CurrentPrice)

	// 已结束的商品再结算返回冲突，清扫调用方据此跳过
	assert.ErrorIs(t, ps.finalizeAuction(fresh), aucerrors.ErrVersionConflict)
}

// ==================== 查询与视图 ====================

func TestGetProductMasksBidsBeforeEnd(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	bidder := createUser(t, "bidder@test.com", true)
	product := createProduct(t, seller.ID, productOptions{})

	_, err := ps.PlaceBid(product.ID, bidder.ID, 1500)
	require.NoError(t, err)

	viewer := createUser(t, "viewer@test.com", true)
	detail, err := ps.GetProduct(product.ID, viewer.ID)
	require.NoError(t, err)

	// 结束前出价金额隐藏，资格名单不外泄
	require.Len(t, detail.Bids, 1)
	assert.Equal(t, int64(0), detail.Bids[0].Price)
	assert.Nil(t, detail.Members)
	assert.Nil(t, detail.Favorites)
	require.NotNil(t, detail.Winner)
	assert.NotEqual(t, bidder.FullName, detail.Winner.FullName)

	// 结束后出价金额可见，出价者姓名脱敏
	require.NoError(t, config.DB.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("ended", true).Error)
	detail, err = ps.GetProduct(product.ID, viewer.ID)
	require.NoError(t, err)
	require.Len(t, detail.Bids, 1)
	assert.Equal(t, int64(1500), detail.Bids[0].Price)
	assert.Contains(t, detail.Bids[0].Bidder.FullName, "***")
}

func TestGetProductViewerMembershipFlags(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	unrated := createUser(t, "unrated@test.com", false)
	product := createProduct(t, seller.ID, productOptions{})

	require.NoError(t, ps.RequestBid(product.ID, unrated.ID))

	detail, err := ps.GetProduct(product.ID, unrated.ID)
	require.NoError(t, err)
	assert.True(t, detail.Requested)
	assert.False(t, detail.Whitelisted)
	assert.False(t, detail.Blacklisted)

	// 卖家能看到完整资格名单
	sellerDetail, err := ps.GetProduct(product.ID, seller.ID)
	require.NoError(t, err)
	require.Len(t, sellerDetail.Members, 1)
	assert.Equal(t, models.MemberStatusRequested, sellerDetail.Members[0].Status)
}

func TestBidHint(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	bidder := createUser(t, "bidder@test.com", true)
	product := createProduct(t, seller.ID, productOptions{startingPrice: 1000, priceStep: 100})

	hint, err := ps.BidHint(product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), hint)

	_, err = ps.PlaceBid(product.ID, bidder.ID, 1500)
	require.NoError(t, err)

	hint, err = ps.BidHint(product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1600), hint)
}

func TestGetProductsFilters(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	bidder := createUser(t, "bidder@test.com", true)
	p1 := createProduct(t, seller.ID, productOptions{})
	p2 := createProduct(t, seller.ID, productOptions{})
	require.NoError(t, config.DB.Model(&models.Product{}).Where("id = ?", p2.ID).
		Update("ended", true).Error)

	_, err := ps.PlaceBid(p1.ID, bidder.ID, 1500)
	require.NoError(t, err)

	ended := false
	products, total, err := ps.GetProducts(&PaginateProductQuery{Page: 1, Limit: 20, Ended: &ended}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, products, 1)
	assert.Equal(t, p1.ID, products[0].ID)

	// 我出过价的商品
	products, total, err = ps.GetProducts(&PaginateProductQuery{Page: 1, Limit: 20, Bidded: true}, bidder.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, products, 1)
	assert.Equal(t, p1.ID, products[0].ID)

	// 卖家视角
	products, _, err = ps.GetProducts(&PaginateProductQuery{Page: 1, Limit: 20, SaleFilter: 1}, seller.ID)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestFavorites(t *testing.T) {
	ps, _ := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	user := createUser(t, "user@test.com", true)
	product := createProduct(t, seller.ID, productOptions{})

	require.NoError(t, ps.AddFavorite(product.ID, user.ID))
	// 重复收藏是无操作
	require.NoError(t, ps.AddFavorite(product.ID, user.ID))

	products, total, err := ps.GetProducts(&PaginateProductQuery{Page: 1, Limit: 20, Favorited: true}, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, products, 1)

	require.NoError(t, ps.RemoveFavorite(product.ID, user.ID))
	_, total, err = ps.GetProducts(&PaginateProductQuery{Page: 1, Limit: 20, Favorited: true}, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestUpdateProductAppendsDescription(t *testing.T) {
	ps, notifier := newTestService(t)
	seller := createSeller(t, "seller@test.com")
	product := createProduct(t, seller.ID, productOptions{})

	other := createUser(t, "other@test.com", true)
	assert.ErrorIs(t, ps.UpdateProduct(product.ID, other.ID, "补充"), aucerrors.ErrForbidden)

	require.NoError(t, ps.UpdateProduct(product.ID, seller.ID, "补充说明：支持自提"))
	fresh := reloadProduct(t, product.ID)
	assert.Contains(t, fresh.Description, "测试描述")
	assert.Contains(t, fresh.Description, "补充说明：支持自提")
	assert.GreaterOrEqual(t, notifier.productEventCount(), 1)
}
