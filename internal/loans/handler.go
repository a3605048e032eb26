package loans

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const uploadField = "loan_file"

type Handler struct {
	svc          *Service
	exposeDetail bool
}

// RegisterRoutes mounts the loan endpoints. exposeDetail puts internal error text
// in responses and is meant for dev mode only.
func RegisterRoutes(r gin.IRoutes, svc *Service, exposeDetail bool) {
	h := &Handler{svc: svc, exposeDetail: exposeDetail}

	// list / lookup
	r.GET("/loans", h.ListLoans)
	r.GET("/loans/:transaction_number", h.GetLoan)

	// batch upload
	r.GET("/uploads/options", h.UploadOptions)
	r.POST("/uploads", h.Upload)

	// pickers
	r.GET("/deductions", h.ListDeductions)
	r.POST("/deductions/descriptions", h.DeductionDescriptions)
	r.GET("/users/active", h.ActiveUsers)
}

// ---------- handlers ----------

func (h *Handler) ListLoans(c *gin.Context) {
	page := parseIntDefault(c.Query("page"), 1)
	res, err := h.svc.ListLoans(c.Request.Context(), page)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetLoan(c *gin.Context) {
	res, err := h.svc.GetLoan(c.Request.Context(), c.Param("transaction_number"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UploadOptions(c *gin.Context) {
	res, err := h.svc.UploadOptions(c.Request.Context(), c.Query("deduction_type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Upload takes multipart/form-data with loan_file plus the UploadRequest fields.
// ?format=csv answers with the rejected-rows report instead of JSON.
func (h *Handler) Upload(c *gin.Context) {
	if limit := h.svc.MaxUploadBytes(); limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	var req UploadRequest
	if err := c.ShouldBind(&req); err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody(CodeInvalidArgument, "upload is too large"))
			return
		}
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, msgSelectDescription))
		return
	}
	fh, err := c.FormFile(uploadField)
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody(CodeInvalidArgument, "upload is too large"))
			return
		}
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "loan_file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	res, err := h.svc.UploadLoans(c.Request.Context(), req, f)
	if err != nil {
		h.fail(c, err)
		return
	}

	if c.Query("format") == "csv" {
		body, err := WriteRejectedCSV(res)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+ReportFilename+`"`)
		c.Header("X-Batch-ID", res.BatchID)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
		return
	}
	c.JSON(http.StatusOK, toUploadResponse(res))
}

func (h *Handler) ListDeductions(c *gin.Context) {
	res, err := h.svc.DeductionDescriptions(c.Request.Context(), c.Query("type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeductionDescriptions(c *gin.Context) {
	var req DescriptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.DeductionDescriptions(c.Request.Context(), req.DeductionType)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ActiveUsers(c *gin.Context) {
	res, err := h.svc.ActiveUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

func (h *Handler) fail(c *gin.Context, err error) {
	status := ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[ERROR] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, h.errorFromErr(err))
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func (h *Handler) errorFromErr(err error) errorDTO {
	var api *APIError
	if errors.As(err, &api) && api.Code != CodeInternal {
		return errorBody(api.Code, api.Message)
	}
	if h.exposeDetail {
		return errorBody(CodeInternal, err.Error())
	}
	return errorBody(CodeInternal, "Internal Server Error")
}
