package weather

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/embedops/flashgate/pkg/apiresponses"
)

// Controller exposes the weather/geocode proxy routes.
type Controller struct {
	log        *zap.SugaredLogger
	client     *Client
	middleware gin.HandlerFunc
}

func NewController(log *zap.SugaredLogger, client *Client, middleware gin.HandlerFunc) *Controller {
	return &Controller{log: log, client: client, middleware: middleware}
}

func (Controller) BasePath() string {
	return ""
}

func (ct *Controller) Register(rg *gin.RouterGroup) error {
	rg.GET("/weather", ct.handleWeather)
	rg.GET("/geocode", ct.handleGeocode)

	return nil
}

func (ct Controller) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{ct.middleware}
}

func (ct *Controller) handleWeather(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil {
		apiresponses.RespondBadRequest(c, "lat and lon query parameters are required")
		return
	}

	forecast, err := ct.client.Forecast(c.Request.Context(), lat, lon)
	if err != nil {
		ct.log.Warnw("forecast lookup failed", "error", err)
		apiresponses.RespondBadGateway(c, "weather service unavailable")
		return
	}

	payload := gin.H{
		"ok":        true,
		"tempC":     forecast.TempC,
		"windSpeed": forecast.WindSpeed,
		"code":      forecast.Code,
	}
	if strings.EqualFold(c.Query("unit"), "f") {
		payload["tempF"] = forecast.TempF
	}
	apiresponses.RespondOK(c, payload)
}

func (ct *Controller) handleGeocode(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if len(query) < 2 {
		apiresponses.RespondBadRequest(c, "query must be at least 2 characters")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	matches, err := ct.client.Geocode(c.Request.Context(), query, limit, c.Query("lang"))
	if err != nil {
		ct.log.Warnw("geocode lookup failed", "error", err)
		apiresponses.RespondBadGateway(c, "geocoding service unavailable")
		return
	}
	apiresponses.RespondOK(c, gin.H{"ok": true, "matches": matches})
}
