package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vibefunder/billing/internal/api/dto"
	ierr "github.com/vibefunder/billing/internal/errors"
	"github.com/vibefunder/billing/internal/logger"
	"github.com/vibefunder/billing/internal/service"
)

type PriceHandler struct {
	service service.PriceCatalogService
	log     *logger.Logger
}

func NewPriceHandler(service service.PriceCatalogService, log *logger.Logger) *PriceHandler {
	return &PriceHandler{service: service, log: log}
}

func (h *PriceHandler) CreatePrice(c *gin.Context) {
	var req dto.CreatePriceRequest
	if !bindJSON(c, h.log, &req) {
		return
	}

	resp, err := h.service.CreatePrice(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *PriceHandler) GetPrice(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("price ID is required").
			WithHint("Please provide a valid price ID").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.GetPrice(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
