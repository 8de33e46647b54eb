package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/types"
	"kardex/internal/domain/ledger"
	"kardex/internal/infrastructure/http/v1/dto"
)

// LedgerHandler handles HTTP requests for the movement ledger.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Fulfill handles POST /ledger/fulfill
func (h *LedgerHandler) Fulfill(c *gin.Context) {
	var req dto.FulfillRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouse, err := req.Warehouse.ToWarehouseRef()
	if err != nil {
		h.Error(c, err)
		return
	}
	product, err := req.Product.ToProductRef()
	if err != nil {
		h.Error(c, err)
		return
	}

	kind := entity.MovementKind(req.Kind)
	if req.Kind == "" {
		kind = entity.KindSaleFulfillment
	}

	movements, err := h.service.Fulfill(c.Request.Context(), h.Scope(c),
		warehouse, product, req.Quantity, kind, ledger.Policy(req.Policy), req.Reference)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromMovements(movements))
}

// Receive handles POST /ledger/receive
func (h *LedgerHandler) Receive(c *gin.Context) {
	var req dto.ReceiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouse, err := req.Warehouse.ToWarehouseRef()
	if err != nil {
		h.Error(c, err)
		return
	}
	product, err := req.Product.ToProductRef()
	if err != nil {
		h.Error(c, err)
		return
	}

	movement, err := h.service.Receive(c.Request.Context(), h.Scope(c),
		warehouse, product, req.PurchaseQty, req.UnitsPerPackage,
		req.TotalCost, req.LotCode, req.ExpiryDate, req.Reference)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromMovement(movement))
}

// Inbound handles POST /ledger/inbound
func (h *LedgerHandler) Inbound(c *gin.Context) {
	var req dto.InboundRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouse, err := req.Warehouse.ToWarehouseRef()
	if err != nil {
		h.Error(c, err)
		return
	}
	product, err := req.Product.ToProductRef()
	if err != nil {
		h.Error(c, err)
		return
	}

	movement, err := h.service.Inbound(c.Request.Context(), h.Scope(c),
		warehouse, product, req.Quantity, req.UnitCost,
		entity.MovementKind(req.Kind), req.LotCode, req.ExpiryDate, req.Reference)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromMovement(movement))
}

// Withdraw handles POST /ledger/withdraw
func (h *LedgerHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouse, err := req.Warehouse.ToWarehouseRef()
	if err != nil {
		h.Error(c, err)
		return
	}
	product, err := req.Product.ToProductRef()
	if err != nil {
		h.Error(c, err)
		return
	}

	movement, err := h.service.Withdraw(c.Request.Context(), h.Scope(c),
		warehouse, product, req.LotCode, req.Quantity,
		entity.MovementKind(req.Kind), req.Reference)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromMovement(movement))
}

// ReturnToSupplier handles POST /ledger/returns/supplier
func (h *LedgerHandler) ReturnToSupplier(c *gin.Context) {
	var req dto.SupplierReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouse, err := req.Warehouse.ToWarehouseRef()
	if err != nil {
		h.Error(c, err)
		return
	}
	product, err := req.Product.ToProductRef()
	if err != nil {
		h.Error(c, err)
		return
	}

	movement, err := h.service.ReturnToSupplier(c.Request.Context(), h.Scope(c),
		warehouse, product, req.LotCode, req.Quantity, req.Reference)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromMovement(movement))
}

// ReturnFromCustomer handles POST /ledger/returns/customer
func (h *LedgerHandler) ReturnFromCustomer(c *gin.Context) {
	var req dto.CustomerReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouse, err := req.Warehouse.ToWarehouseRef()
	if err != nil {
		h.Error(c, err)
		return
	}
	product, err := req.Product.ToProductRef()
	if err != nil {
		h.Error(c, err)
		return
	}

	movement, err := h.service.ReturnFromCustomer(c.Request.Context(), h.Scope(c),
		warehouse, product, req.Quantity, req.UnitCost,
		req.LotCode, req.ExpiryDate, req.Reference)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromMovement(movement))
}

// Adjust handles POST /ledger/adjust
func (h *LedgerHandler) Adjust(c *gin.Context) {
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouse, err := req.Warehouse.ToWarehouseRef()
	if err != nil {
		h.Error(c, err)
		return
	}
	product, err := req.Product.ToProductRef()
	if err != nil {
		h.Error(c, err)
		return
	}

	movement, err := h.service.Adjust(c.Request.Context(), h.Scope(c),
		warehouse, product, req.LotCode, req.Quantity,
		req.UnitCost, req.Reason, req.Reference)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromMovement(movement))
}

// Transfer handles POST /ledger/transfer
func (h *LedgerHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	source, err := req.Source.ToWarehouseRef()
	if err != nil {
		h.Error(c, err)
		return
	}
	dest, err := req.Dest.ToWarehouseRef()
	if err != nil {
		h.Error(c, err)
		return
	}
	product, err := req.Product.ToProductRef()
	if err != nil {
		h.Error(c, err)
		return
	}

	out, in, err := h.service.Transfer(c.Request.Context(), h.Scope(c),
		source, dest, product, req.Quantity, req.LotCode, req.Reference)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.TransferResponse{
		Out: dto.FromMovement(out),
		In:  dto.FromMovement(in),
	})
}

// Rebuild handles POST /ledger/rebuild
func (h *LedgerHandler) Rebuild(c *gin.Context) {
	var req dto.RebuildRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouseID, productID, ok := h.parseKeyIDs(c, req.WarehouseID, req.ProductID)
	if !ok {
		return
	}

	balance, err := h.service.Rebuild(c.Request.Context(), h.Scope(c),
		warehouseID, productID, req.LotCode)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromBalance(balance))
}

// ClearQuarantine handles POST /ledger/quarantine/clear
func (h *LedgerHandler) ClearQuarantine(c *gin.Context) {
	var req dto.RebuildRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouseID, productID, ok := h.parseKeyIDs(c, req.WarehouseID, req.ProductID)
	if !ok {
		return
	}

	if err := h.service.ClearQuarantine(c.Request.Context(), h.Scope(c),
		warehouseID, productID, req.LotCode); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "quarantine cleared")
}

// GetBalances handles GET /ledger/balances
func (h *LedgerHandler) GetBalances(c *gin.Context) {
	warehouseID, productID, ok := h.parseKeyIDs(c, c.Query("warehouseId"), c.Query("productId"))
	if !ok {
		return
	}

	ctx := c.Request.Context()
	scope := h.Scope(c)

	if lotCode, given := c.GetQuery("lotCode"); given {
		balance, err := h.service.GetBalance(ctx, scope, warehouseID, productID, lotCode)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, dto.FromBalance(balance))
		return
	}

	balances, err := h.service.GetBalances(ctx, scope, warehouseID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.BalanceResponse, len(balances))
	for i, b := range balances {
		items[i] = dto.FromBalance(b)
	}
	h.OK(c, dto.BalanceListResponse{Items: items})
}

// GetMovements handles GET /ledger/movements
func (h *LedgerHandler) GetMovements(c *gin.Context) {
	filter := ledger.MovementFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if whStr := c.Query("warehouseId"); whStr != "" {
		parsed, err := id.Parse(whStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid warehouseId format"))
			return
		}
		filter.WarehouseID = &parsed
	}
	if pStr := c.Query("productId"); pStr != "" {
		parsed, err := id.Parse(pStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid productId format"))
			return
		}
		filter.ProductID = &parsed
	}
	if lot, given := c.GetQuery("lotCode"); given {
		filter.LotCode = &lot
	}
	if kindStr := c.Query("kind"); kindStr != "" {
		kind := entity.MovementKind(kindStr)
		if !kind.IsValid() {
			h.Error(c, apperror.NewValidation("unknown movement kind").WithDetail("kind", kindStr))
			return
		}
		filter.Kind = &kind
	}

	var ok bool
	if filter.FromDate, ok = h.parseTimeQuery(c, "fromDate"); !ok {
		return
	}
	if filter.ToDate, ok = h.parseTimeQuery(c, "toDate"); !ok {
		return
	}

	movements, err := h.service.ListMovements(c.Request.Context(), h.Scope(c), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromMovements(movements))
}

// GetTurnovers handles GET /ledger/turnovers
func (h *LedgerHandler) GetTurnovers(c *gin.Context) {
	fromDate, ok := h.parseTimeQuery(c, "fromDate")
	if !ok {
		return
	}
	toDate, ok := h.parseTimeQuery(c, "toDate")
	if !ok {
		return
	}
	if fromDate == nil || toDate == nil {
		h.Error(c, apperror.NewValidation("fromDate and toDate are required"))
		return
	}

	filter := ledger.TurnoverFilter{
		FromDate: *fromDate,
		ToDate:   *toDate,
	}
	if whStr := c.Query("warehouseId"); whStr != "" {
		parsed, err := id.Parse(whStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid warehouseId format"))
			return
		}
		filter.WarehouseID = &parsed
	}
	if pStr := c.Query("productId"); pStr != "" {
		parsed, err := id.Parse(pStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid productId format"))
			return
		}
		filter.ProductID = &parsed
	}

	turnover, err := h.service.Turnover(c.Request.Context(), h.Scope(c), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromTurnover(turnover))
}

// GetPlan handles GET /ledger/plan
//
// Pure-read allocation preview: computes the same plan a fulfillment
// would use, without writing or reserving anything.
func (h *LedgerHandler) GetPlan(c *gin.Context) {
	warehouseID, productID, ok := h.parseKeyIDs(c, c.Query("warehouseId"), c.Query("productId"))
	if !ok {
		return
	}

	qty, err := types.ParseQuantity(c.Query("quantity"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid quantity").WithDetail("error", err.Error()))
		return
	}

	plan, err := h.service.Plan(c.Request.Context(), h.Scope(c),
		warehouseID, productID, qty, ledger.Policy(c.Query("policy")))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, plan)
}

func (h *LedgerHandler) parseKeyIDs(c *gin.Context, warehouseStr, productStr string) (id.ID, id.ID, bool) {
	warehouseID, err := id.Parse(warehouseStr)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid warehouseId format"))
		return id.Nil(), id.Nil(), false
	}
	productID, err := id.Parse(productStr)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return id.Nil(), id.Nil(), false
	}
	return warehouseID, productID, true
}

func (h *LedgerHandler) parseTimeQuery(c *gin.Context, key string) (*time.Time, bool) {
	val := c.Query(key)
	if val == "" {
		return nil, true
	}
	parsed, err := time.Parse(time.RFC3339, val)
	if err != nil {
		parsed, err = time.Parse("2006-01-02", val)
	}
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid "+key+" format, want RFC3339 or YYYY-MM-DD"))
		return nil, false
	}
	return &parsed, true
}
