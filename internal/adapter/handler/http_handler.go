package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logger"
	"github.com/rl1809/storefront/internal/port"
)

type OrderUseCase interface {
	CreateOrder(ctx context.Context, in domain.CreateOrderInput) (*domain.Order, error)
	CancelOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]domain.Order, error)
	ListAllOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (*domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, status domain.PaymentStatus) (*domain.Order, error)
}

type OTPUseCase interface {
	Send(ctx context.Context, email string, purpose domain.OTPPurpose) error
	Login(ctx context.Context, email, code string) (*domain.Session, error)
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

type AuthUseCase interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.Session, error)
	Login(ctx context.Context, email, password string) (*domain.Session, error)
	Me(ctx context.Context, userID int64) (*domain.User, error)
}

type CatalogUseCase interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)
	AdjustStock(ctx context.Context, productID int64, delta int) (*domain.Product, error)
}

type CartUseCase interface {
	List(ctx context.Context, userID int64) (domain.Cart, error)
	Add(ctx context.Context, userID, productID int64, size string, quantity int) (domain.Cart, error)
	Update(ctx context.Context, userID, productID int64, size string, quantity int) (domain.Cart, error)
	Remove(ctx context.Context, userID, productID int64, size string) (domain.Cart, error)
}

type Services struct {
	Orders  OrderUseCase
	OTP     OTPUseCase
	Auth    AuthUseCase
	Catalog CatalogUseCase
	Cart    CartUseCase
	Tokens  port.TokenIssuer
}

type HTTPHandler struct {
	orders  OrderUseCase
	otp     OTPUseCase
	auth    AuthUseCase
	catalog CatalogUseCase
	cart    CartUseCase
	tokens  port.TokenIssuer
	limiter *RateLimiter
}

// NewHTTPHandler wires the use cases to routes. A nil limiter disables rate
// limiting on the auth and otp endpoints.
func NewHTTPHandler(svc Services, limiter *RateLimiter) *HTTPHandler {
	return &HTTPHandler{
		orders:  svc.Orders,
		otp:     svc.OTP,
		auth:    svc.Auth,
		catalog: svc.Catalog,
		cart:    svc.Cart,
		tokens:  svc.Tokens,
		limiter: limiter,
	}
}

// NewRouter builds the gin engine with request id, access logging and panic
// recovery ahead of the routes. Forwarding headers are honored only from
// trustedProxies; with none, the client IP is the connection's peer address.
func NewRouter(h *HTTPHandler, log *zap.Logger, trustedProxies []string) (*gin.Engine, error) {
	setupValidator()
	r := gin.New()
	if len(trustedProxies) == 0 {
		trustedProxies = nil
	}
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	r.Use(RequestID(), logger.GinMiddleware(log), logger.Recovery(log))
	h.Routes(r)
	return r, nil
}

func (h *HTTPHandler) Routes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	limited := []gin.HandlerFunc{}
	if h.limiter != nil {
		limited = append(limited, RateLimit(h.limiter))
	}
	authRequired := Auth(h.tokens)

	authGroup := r.Group("/auth", limited...)
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/reset-password", h.ResetPassword)
	authGroup.GET("/me", authRequired, h.Me)

	otpGroup := r.Group("/otp", limited...)
	otpGroup.POST("/send", h.SendOTP)
	otpGroup.POST("/verify", h.VerifyOTP)

	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)

	cartGroup := r.Group("/cart", authRequired)
	cartGroup.GET("", h.GetCart)
	cartGroup.POST("", h.AddToCart)
	cartGroup.PUT("/:productId", h.UpdateCart)
	cartGroup.DELETE("/:productId", h.RemoveFromCart)

	orderGroup := r.Group("/orders", authRequired)
	orderGroup.POST("", h.CreateOrder)
	orderGroup.GET("", h.ListOrders)
	orderGroup.GET("/:id", h.GetOrder)
	orderGroup.PUT("/:id/cancel", h.CancelOrder)

	admin := r.Group("/admin", authRequired, RequireRole(domain.RoleAdmin))
	admin.GET("/orders", h.AdminListOrders)
	admin.PUT("/orders/:id/status", h.AdminUpdateStatus)
	admin.PUT("/orders/:id/payment", h.AdminUpdatePayment)
	admin.PUT("/products/:id/stock", h.AdminAdjustStock)
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, domain.Validation("invalid "+name).With("param", c.Param(name)))
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"omitempty,max=20"`
	Password string `json:"password" binding:"required"`
}

func (h *HTTPHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	session, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, session)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *HTTPHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	session, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, session)
}

func (h *HTTPHandler) Me(c *gin.Context) {
	id, _ := identityFrom(c)
	user, err := h.auth.Me(c.Request.Context(), id.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required"`
	Code        string `json:"code" binding:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func (h *HTTPHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if err := h.otp.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		respondOTPError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "password updated"})
}

type sendOTPRequest struct {
	Email   string            `json:"email" binding:"required,email"`
	Purpose domain.OTPPurpose `json:"purpose"`
}

func (h *HTTPHandler) SendOTP(c *gin.Context) {
	var req sendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.Purpose == "" {
		req.Purpose = domain.OTPPurposeLogin
	}
	if err := h.otp.Send(c.Request.Context(), req.Email, req.Purpose); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "code sent"})
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

func (h *HTTPHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	session, err := h.otp.Login(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondOTPError(c, err)
		return
	}
	respondOK(c, http.StatusOK, session)
}

// respondOTPError adds a short machine reason to OTP failures, e.g.
// "mismatch" or "too_many_attempts".
func respondOTPError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	reason, isOTP := strings.CutPrefix(string(kind), "OTP_")
	if !isOTP {
		respondError(c, err)
		return
	}
	var de *domain.Error
	if errors.As(err, &de) {
		err = de.With("reason", strings.ToLower(reason))
	}
	respondError(c, err)
}

type productQuery struct {
	Category    int64  `form:"category" binding:"omitempty,gt=0"`
	Subcategory int64  `form:"subcategory" binding:"omitempty,gt=0"`
	Search      string `form:"search" binding:"max=100"`
	Page        int    `form:"page" binding:"omitempty,min=1"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (h *HTTPHandler) ListProducts(c *gin.Context) {
	var q productQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}
	products, err := h.catalog.ListProducts(c.Request.Context(), domain.ProductFilter{
		CategoryID:    q.Category,
		SubcategoryID: q.Subcategory,
		Search:        q.Search,
		Page:          q.Page,
		Limit:         q.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, products)
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	p, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

type addToCartRequest struct {
	ProductID int64  `json:"productId" binding:"required,gt=0"`
	Size      string `json:"size" binding:"max=20"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

func (h *HTTPHandler) GetCart(c *gin.Context) {
	id, _ := identityFrom(c)
	cart, err := h.cart.List(c.Request.Context(), id.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}

func (h *HTTPHandler) AddToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	id, _ := identityFrom(c)
	cart, err := h.cart.Add(c.Request.Context(), id.UserID, req.ProductID, req.Size, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}

type updateCartRequest struct {
	Size     string `json:"size" binding:"max=20"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

func (h *HTTPHandler) UpdateCart(c *gin.Context) {
	productID, valid := pathID(c, "productId")
	if !valid {
		return
	}
	var req updateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	id, _ := identityFrom(c)
	cart, err := h.cart.Update(c.Request.Context(), id.UserID, productID, req.Size, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}

func (h *HTTPHandler) RemoveFromCart(c *gin.Context) {
	productID, valid := pathID(c, "productId")
	if !valid {
		return
	}
	id, _ := identityFrom(c)
	cart, err := h.cart.Remove(c.Request.Context(), id.UserID, productID, c.Query("size"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}

type createOrderRequest struct {
	ShippingAddress string               `json:"shippingAddress"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod"`
	Items           []domain.LineItem    `json:"items"`
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	id, _ := identityFrom(c)
	order, err := h.orders.CreateOrder(c.Request.Context(), domain.CreateOrderInput{
		UserID:          id.UserID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Items:           req.Items,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, order)
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	id, _ := identityFrom(c)
	orders, err := h.orders.ListOrders(c.Request.Context(), id.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, orders)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	orderID, valid := pathID(c, "id")
	if !valid {
		return
	}
	id, _ := identityFrom(c)
	order, err := h.orders.GetOrder(c.Request.Context(), id.UserID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

func (h *HTTPHandler) CancelOrder(c *gin.Context) {
	orderID, valid := pathID(c, "id")
	if !valid {
		return
	}
	id, _ := identityFrom(c)
	order, err := h.orders.CancelOrder(c.Request.Context(), id.UserID, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

type adminOrderQuery struct {
	Status domain.OrderStatus `form:"status"`
	Page   int                `form:"page" binding:"omitempty,min=1"`
	Limit  int                `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (h *HTTPHandler) AdminListOrders(c *gin.Context) {
	var q adminOrderQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBindError(c, err)
		return
	}
	orders, err := h.orders.ListAllOrders(c.Request.Context(), domain.OrderFilter{
		Status: q.Status,
		Page:   q.Page,
		Limit:  q.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status" binding:"required"`
}

func (h *HTTPHandler) AdminUpdateStatus(c *gin.Context) {
	orderID, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	order, err := h.orders.UpdateStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

type updatePaymentRequest struct {
	PaymentStatus domain.PaymentStatus `json:"paymentStatus" binding:"required"`
}

func (h *HTTPHandler) AdminUpdatePayment(c *gin.Context) {
	orderID, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req updatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	order, err := h.orders.UpdatePaymentStatus(c.Request.Context(), orderID, req.PaymentStatus)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

type adjustStockRequest struct {
	Delta int `json:"delta" binding:"required,ne=0"`
}

func (h *HTTPHandler) AdminAdjustStock(c *gin.Context) {
	productID, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req adjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	p, err := h.catalog.AdjustStock(c.Request.Context(), productID, req.Delta)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}
