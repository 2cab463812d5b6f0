package services

import (
	"context"
	"strings"
	"time"

	"bookmarket_go/locker"
	"bookmarket_go/middleware"
	"bookmarket_go/models"
	"bookmarket_go/store"
	"bookmarket_go/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SubmitCommand 人工录入申请
type SubmitCommand struct {
	UserID   int64
	ChatID   int64
	Username string
	ISBN     string
	Price    string
	Title    string
	Authors  string
}

// CascadeResult 级联处理中单条申请的结果
type CascadeResult struct {
	Request models.BookRequest `json:"request"`
	Listing *models.Listing    `json:"listing,omitempty"`
	Signal  Signal             `json:"signal"` // REQUEST_FULFILLED 或 DB_ERROR
	Error   string             `json:"error,omitempty"`
}

// ApprovalReport 审核通过的结果，包含主申请与级联申请
type ApprovalReport struct {
	Request      models.BookRequest `json:"request"`
	Listing      models.Listing     `json:"listing"`
	Cascaded     []CascadeResult    `json:"cascaded"`
	CascadeError string             `json:"cascade_error,omitempty"`
}

// Failed 级联失败的申请数
func (r *ApprovalReport) Failed() int {
	n := 0
	for _, c := range r.Cascaded {
		if c.Signal != SignalRequestFulfilled {
			n++
		}
	}
	return n
}

// RequestService 人工录入申请流程
// 同一ISBN的提交、通过、拒绝通过写锁串行执行
type RequestService struct {
	gw       *store.Gateway
	listings *ListingService
	locks    locker.Locker
	notifier Notifier
	now      func() time.Time
}

// NewRequestService 创建申请服务，notifier 为 nil 时丢弃通知
func NewRequestService(gw *store.Gateway, listings *ListingService, locks locker.Locker, notifier Notifier) *RequestService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &RequestService{
		gw:       gw,
		listings: listings,
		locks:    locks,
		notifier: notifier,
		now:      time.Now,
	}
}

// Submit 提交申请并通知管理员
func (s *RequestService) Submit(ctx context.Context, cmd SubmitCommand) (models.BookRequest, error) {
	if !utils.ValidateUsername(cmd.Username) {
		return models.BookRequest{}, ErrUsernameRequired
	}
	if !utils.IsISBNShape(cmd.ISBN) {
		return models.BookRequest{}, ErrInvalidIdentifier
	}
	price, _, err := utils.NormalizePrice(cmd.Price)
	if err != nil {
		return models.BookRequest{}, err
	}
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return models.BookRequest{}, ErrIncompleteRequest
	}
	if cmd.ChatID == 0 {
		cmd.ChatID = cmd.UserID
	}

	unlock, err := s.locks.Lock(ctx, cmd.ISBN)
	if err != nil {
		return models.BookRequest{}, err
	}
	req, err := s.submitLocked(ctx, cmd, price, title)
	unlock()
	if err != nil {
		return models.BookRequest{}, err
	}

	middleware.InfoLogger("📨 book request submitted",
		zap.String("request_id", req.ID),
		zap.String("isbn", req.ISBN),
		zap.Int64("user_id", req.UserID),
	)

	s.notifyAdmins(ctx, Notification{
		Signal:  SignalRequestSubmitted,
		UserID:  req.UserID,
		ChatID:  req.ChatID,
		Request: &req,
	})
	return req, nil
}

func (s *RequestService) submitLocked(ctx context.Context, cmd SubmitCommand, price float64, title string) (models.BookRequest, error) {
	_, exists, err := findBook(ctx, s.gw, cmd.ISBN)
	if err != nil {
		return models.BookRequest{}, err
	}
	if exists {
		return models.BookRequest{}, ErrAlreadyPresent
	}

	var dup []models.BookRequest
	if _, err := s.gw.Execute(ctx, store.Select{
		Dest: &dup,
		Scopes: []store.Scope{func(db *gorm.DB) *gorm.DB {
			return db.Where("user_id = ? AND isbn = ? AND status = ?", cmd.UserID, cmd.ISBN, models.RequestPending).Limit(1)
		}},
	}); err != nil {
		return models.BookRequest{}, err
	}
	if len(dup) > 0 {
		return models.BookRequest{}, ErrDuplicateRequest
	}

	req := models.BookRequest{
		UserID:   cmd.UserID,
		ChatID:   cmd.ChatID,
		Username: cmd.Username,
		ISBN:     cmd.ISBN,
		Price:    price,
		Title:    title,
		Authors:  strings.TrimSpace(cmd.Authors),
		Status:   models.RequestPending,
	}
	if _, err := s.gw.Execute(ctx, store.Insert{Value: &req}); err != nil {
		return models.BookRequest{}, err
	}
	return req, nil
}

// Approve 通过申请：登记书籍、为申请人创建在售记录，
// 然后按提交顺序级联处理同一ISBN的其余待审申请
// 级联中的失败不会回滚主申请，失败项保持待审并记录在报告中
func (s *RequestService) Approve(ctx context.Context, requestID string, adminID int64) (ApprovalReport, error) {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return ApprovalReport{}, err
	}
	if !req.IsPending() {
		return ApprovalReport{}, ErrRequestNotPending
	}

	unlock, err := s.locks.Lock(ctx, req.ISBN)
	if err != nil {
		return ApprovalReport{}, err
	}
	report, notes, err := s.approveLocked(ctx, requestID, adminID)
	unlock()
	if err != nil {
		return ApprovalReport{}, err
	}

	middleware.InfoLogger("✅ book request approved",
		zap.String("request_id", report.Request.ID),
		zap.String("isbn", report.Request.ISBN),
		zap.Int64("admin_id", adminID),
		zap.Int("cascaded", len(report.Cascaded)),
		zap.Int("cascade_failed", report.Failed()),
	)

	for _, n := range notes {
		s.notifyUser(ctx, n)
	}
	return report, nil
}

func (s *RequestService) approveLocked(ctx context.Context, requestID string, adminID int64) (ApprovalReport, []Notification, error) {
	// 持锁后重新读取，期间可能已被其他管理员处理
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return ApprovalReport{}, nil, err
	}
	if !req.IsPending() {
		return ApprovalReport{}, nil, ErrRequestNotPending
	}

	book := models.Book{
		ISBN:    req.ISBN,
		Title:   req.Title,
		Authors: req.Authors,
		Source:  models.BookSourceManual,
	}

	listing, err := s.fulfill(ctx, &req, book, adminID, false)
	if err != nil {
		return ApprovalReport{}, nil, err
	}

	report := ApprovalReport{Request: req, Listing: listing, Cascaded: []CascadeResult{}}
	notes := []Notification{{
		Signal:  SignalRequestFulfilled,
		UserID:  req.UserID,
		ChatID:  req.ChatID,
		Request: &report.Request,
		Listing: &report.Listing,
	}}

	var others []models.BookRequest
	if _, err := s.gw.Execute(ctx, store.Select{
		Dest: &others,
		Scopes: []store.Scope{func(db *gorm.DB) *gorm.DB {
			return db.Where("isbn = ? AND status = ? AND id <> ?", req.ISBN, models.RequestPending, req.ID).
				Order("created_at ASC, id ASC")
		}},
	}); err != nil {
		report.CascadeError = err.Error()
		middleware.ErrorLogger("cascade lookup failed", zap.String("isbn", req.ISBN), zap.Error(err))
		return report, notes, nil
	}

	for i := range others {
		other := others[i]
		l, err := s.fulfill(ctx, &other, book, adminID, true)
		if err != nil {
			middleware.ErrorLogger("cascade fulfillment failed",
				zap.String("request_id", other.ID),
				zap.String("isbn", other.ISBN),
				zap.Error(err),
			)
			report.Cascaded = append(report.Cascaded, CascadeResult{
				Request: other,
				Signal:  SignalDBError,
				Error:   err.Error(),
			})
			notes = append(notes, Notification{
				Signal:  SignalDBError,
				UserID:  other.UserID,
				ChatID:  other.ChatID,
				Cascade: true,
				Request: &other,
			})
			continue
		}
		report.Cascaded = append(report.Cascaded, CascadeResult{
			Request: other,
			Listing: &l,
			Signal:  SignalRequestFulfilled,
		})
		notes = append(notes, Notification{
			Signal:  SignalRequestFulfilled,
			UserID:  other.UserID,
			ChatID:  other.ChatID,
			Cascade: true,
			Request: &other,
			Listing: &l,
		})
	}

	return report, notes, nil
}

// fulfill 为申请人创建在售记录并把申请置为已完成
// 状态更新失败时删除刚创建的在售记录
func (s *RequestService) fulfill(ctx context.Context, req *models.BookRequest, book models.Book, adminID int64, cascaded bool) (models.Listing, error) {
	listing, err := s.listings.listBookLocked(ctx, book, !cascaded, Seller{ID: req.UserID, Username: req.Username}, req.Price)
	if err != nil {
		return models.Listing{}, err
	}

	now := s.now()
	res, err := s.gw.Execute(ctx, store.Update{
		Model: &models.BookRequest{},
		Where: "id = ? AND status = ?",
		Args:  []any{req.ID, models.RequestPending},
		Values: map[string]any{
			"status":     models.RequestFulfilled,
			"cascaded":   cascaded,
			"listing_id": listing.ID,
			"decided_by": adminID,
			"decided_at": now,
		},
	})
	if err == nil && res.Affected == 0 {
		err = ErrRequestNotPending
	}
	if err != nil {
		if _, derr := s.gw.Execute(ctx, store.Delete{
			Model: &models.Listing{},
			Where: "id = ?",
			Args:  []any{listing.ID},
		}); derr != nil {
			middleware.ErrorLogger("orphan listing left after failed fulfillment",
				zap.Uint("listing_id", listing.ID),
				zap.Error(derr),
			)
		}
		return models.Listing{}, err
	}

	req.Status = models.RequestFulfilled
	req.Cascaded = cascaded
	req.ListingID = &listing.ID
	req.DecidedBy = &adminID
	req.DecidedAt = &now
	return listing, nil
}

// Decline 拒绝单条申请，同一ISBN的其他申请不受影响
func (s *RequestService) Decline(ctx context.Context, requestID string, adminID int64) (models.BookRequest, error) {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return models.BookRequest{}, err
	}
	if !req.IsPending() {
		return models.BookRequest{}, ErrRequestNotPending
	}

	unlock, err := s.locks.Lock(ctx, req.ISBN)
	if err != nil {
		return models.BookRequest{}, err
	}
	now := s.now()
	res, err := s.gw.Execute(ctx, store.Update{
		Model: &models.BookRequest{},
		Where: "id = ? AND status = ?",
		Args:  []any{req.ID, models.RequestPending},
		Values: map[string]any{
			"status":     models.RequestRejected,
			"decided_by": adminID,
			"decided_at": now,
		},
	})
	unlock()
	if err != nil {
		return models.BookRequest{}, err
	}
	if res.Affected == 0 {
		return models.BookRequest{}, ErrRequestNotPending
	}

	req.Status = models.RequestRejected
	req.DecidedBy = &adminID
	req.DecidedAt = &now

	middleware.InfoLogger("❌ book request declined",
		zap.String("request_id", req.ID),
		zap.String("isbn", req.ISBN),
		zap.Int64("admin_id", adminID),
	)

	s.notifyUser(ctx, Notification{
		Signal:  SignalRequestRejected,
		UserID:  req.UserID,
		ChatID:  req.ChatID,
		Request: &req,
	})
	return req, nil
}

// Pending 待审申请，isbn 为空时返回全部，按提交顺序排列
func (s *RequestService) Pending(ctx context.Context, isbn string) ([]models.BookRequest, error) {
	var rows []models.BookRequest
	_, err := s.gw.Execute(ctx, store.Select{
		Dest: &rows,
		Scopes: []store.Scope{func(db *gorm.DB) *gorm.DB {
			db = db.Where("status = ?", models.RequestPending)
			if isbn != "" {
				db = db.Where("isbn = ?", isbn)
			}
			return db.Order("created_at ASC, id ASC")
		}},
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Get 按ID获取申请
func (s *RequestService) Get(ctx context.Context, requestID string) (models.BookRequest, error) {
	var rows []models.BookRequest
	if _, err := s.gw.Execute(ctx, store.Select{
		Dest: &rows,
		Scopes: []store.Scope{func(db *gorm.DB) *gorm.DB {
			return db.Where("id = ?", requestID).Limit(1)
		}},
	}); err != nil {
		return models.BookRequest{}, err
	}
	if len(rows) == 0 {
		return models.BookRequest{}, ErrRequestNotFound
	}
	return rows[0], nil
}

// 通知在锁外发送，失败只记录日志
func (s *RequestService) notifyAdmins(ctx context.Context, n Notification) {
	n.CreatedAt = s.now()
	if err := s.notifier.NotifyAdmins(context.WithoutCancel(ctx), n); err != nil {
		middleware.WarnLogger("admin notification failed", zap.String("signal", string(n.Signal)), zap.Error(err))
	}
}

func (s *RequestService) notifyUser(ctx context.Context, n Notification) {
	n.CreatedAt = s.now()
	if err := s.notifier.NotifyUser(context.WithoutCancel(ctx), n); err != nil {
		middleware.WarnLogger("user notification failed",
			zap.String("signal", string(n.Signal)),
			zap.Int64("user_id", n.UserID),
			zap.Error(err),
		)
	}
}
