package flash

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/embedops/flashgate/pkg/apiresponses"
	"github.com/embedops/flashgate/pkg/system"
)

// Controller exposes the flash workflow and serial port listing over HTTP.
type Controller struct {
	log        *zap.SugaredLogger
	service    *Service
	ports      PortLister
	middleware gin.HandlerFunc
}

// NewController creates the device controller. middleware is the auth gate
// applied to every route.
func NewController(log *zap.SugaredLogger, service *Service, ports PortLister, middleware gin.HandlerFunc) *Controller {
	return &Controller{
		log:        log,
		service:    service,
		ports:      ports,
		middleware: middleware,
	}
}

func (Controller) BasePath() string {
	return ""
}

func (ct *Controller) Register(rg *gin.RouterGroup) error {
	rg.GET("/ports", ct.handleListPorts)
	rg.POST("/flash", ct.handleFlash)

	return nil
}

func (ct Controller) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{ct.middleware}
}

func (ct *Controller) handleListPorts(c *gin.Context) {
	ports, err := ct.ports.ListPorts()
	if err != nil {
		apiresponses.RespondInternalError(c, "enumerate serial ports", err, ct.log)
		return
	}
	apiresponses.RespondOK(c, gin.H{"ok": true, "ports": ports})
}

func (ct *Controller) handleFlash(c *gin.Context) {
	var req FlashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequest(c, "sketchPath and port are required")
		return
	}

	system.EnrichReqLoggerWithAuth(c, ct.log).Infow("flash requested",
		"sketchPath", req.SketchPath, "port", req.Port, "fqbn", req.FQBN)

	err := ct.service.Flash(c.Request.Context(), req)
	if err == nil {
		apiresponses.RespondOK(c, gin.H{"ok": true, "msg": "sketch compiled and uploaded"})
		return
	}

	var fe *FlashError
	if !errors.As(err, &fe) {
		apiresponses.RespondInternalError(c, "flash device", err, ct.log)
		return
	}

	switch fe.Stage {
	case StageValidate:
		apiresponses.RespondBadRequest(c, fe.Err.Error())
	case StageProbe:
		apiresponses.RespondInternalErrorSimple(c,
			"build tool is not available; install arduino-cli and make sure it is on PATH")
	case StageCompile:
		if fe.TimedOut {
			respondStageError(c, "compile timed out, verify board connection", fe)
		} else {
			respondStageError(c, "compile failed", fe)
		}
	case StageUpload:
		if fe.TimedOut {
			respondStageError(c, "upload timed out, verify board connection", fe)
		} else {
			respondStageError(c, "upload failed", fe)
		}
	default:
		apiresponses.RespondInternalError(c, "flash device", err, ct.log)
	}
}

// respondStageError returns the tool's retained output tail as detail; the
// buffer is already bounded, so it is safe to hand to the client.
func respondStageError(c *gin.Context, message string, fe *FlashError) {
	c.JSON(http.StatusInternalServerError, apiresponses.APIError{
		Error:   message,
		Code:    "PROCESS_FAILURE",
		Details: string(fe.Output),
	})
}
