package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/blackscholes/internal/pricing/application"
	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/pkg/logger"
	"github.com/wyfcoding/blackscholes/pkg/response"
)

// PricingHandler HTTP 处理器
// 负责处理与定价相关的 HTTP 请求
type PricingHandler struct {
	app *application.PricingService
}

// NewPricingHandler 创建 HTTP 处理器实例
func NewPricingHandler(app *application.PricingService) *PricingHandler {
	return &PricingHandler{app: app}
}

// RegisterRoutes 注册路由
func (h *PricingHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/pricing")
	{
		api.POST("/option/price", h.PriceOption)
		api.POST("/option/greeks", h.GetGreeks)
		api.POST("/option/quote", h.Quote)
		api.POST("/batch", h.BatchPriceOptions)
		api.POST("/heatmap", h.BuildHeatmap)
		api.GET("/results/:symbol", h.GetLatestResult)
		api.GET("/results/:symbol/history", h.GetHistory)
	}
}

// GreeksRequest 希腊字母请求，市场参数与 option_type 平铺
type GreeksRequest struct {
	OptionType string `json:"option_type" binding:"required"`
	domain.MarketParameters
}

// PriceOption 单合约定价
func (h *PricingHandler) PriceOption(c *gin.Context) {
	var cmd application.PriceOptionCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.app.PriceOption(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, "failed to price option", err)
		return
	}
	response.Success(c, result)
}

// GetGreeks 计算希腊字母
func (h *PricingHandler) GetGreeks(c *gin.Context) {
	var req GreeksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}
	greeks, err := h.app.GetGreeks(c.Request.Context(), req.OptionType, req.MarketParameters)
	if err != nil {
		h.fail(c, "failed to calculate greeks", err)
		return
	}
	response.Success(c, gin.H{
		"option_type": req.OptionType,
		"greeks":      greeks,
	})
}

// Quote 看涨与看跌的完整报价
func (h *PricingHandler) Quote(c *gin.Context) {
	var p domain.MarketParameters
	if err := c.ShouldBindJSON(&p); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}
	quote, err := h.app.Quote(c.Request.Context(), p)
	if err != nil {
		h.fail(c, "failed to quote", err)
		return
	}
	response.Success(c, quote)
}

// BatchPriceOptions 批量定价
func (h *PricingHandler) BatchPriceOptions(c *gin.Context) {
	var cmd application.BatchPriceOptionsCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.app.BatchPriceOptions(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, "failed to price batch", err)
		return
	}
	response.Success(c, result)
}

// BuildHeatmap 现价 × 波动率 热力图
func (h *PricingHandler) BuildHeatmap(c *gin.Context) {
	var cmd application.HeatmapCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.app.BuildHeatmap(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, "failed to build heatmap", err)
		return
	}
	response.Success(c, result)
}

// GetLatestResult 最新定价结果
func (h *PricingHandler) GetLatestResult(c *gin.Context) {
	result, err := h.app.GetLatestResult(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		h.fail(c, "failed to load latest result", err)
		return
	}
	if result == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "no pricing result for "+c.Param("symbol"))
		return
	}
	response.Success(c, result)
}

// GetHistory 定价历史
func (h *PricingHandler) GetHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	results, err := h.app.GetHistory(c.Request.Context(), c.Param("symbol"), limit)
	if err != nil {
		h.fail(c, "failed to load history", err)
		return
	}
	response.Success(c, gin.H{
		"symbol":  c.Param("symbol"),
		"results": results,
	})
}

// fail 参数错误返回 400 并附带 kind/field；其余按错误类型映射
func (h *PricingHandler) fail(c *gin.Context, msg string, err error) {
	ctx := c.Request.Context()
	if pe, ok := domain.AsParameterError(err); ok {
		response.ErrorWithData(c, pe.HTTPStatus(), pe.Reason(), gin.H{
			"kind":  pe.Kind,
			"field": pe.Field,
		})
		return
	}
	switch {
	case application.IsClientError(err):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, application.ErrPersistenceDisabled):
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		response.ErrorWithStatus(c, http.StatusGatewayTimeout, err.Error())
	default:
		logger.Error(ctx, msg, "error", err)
		response.Error(c, err)
	}
}
