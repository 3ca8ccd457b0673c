package handlers

import (
	"encoding/json"
	"net/http"
	"path"
	"time"

	"github.com/Brownie44l1/waste-api/internal/annotate"
	"github.com/Brownie44l1/waste-api/internal/config"
	perr "github.com/Brownie44l1/waste-api/internal/errors"
	"github.com/Brownie44l1/waste-api/internal/logger"
	"github.com/Brownie44l1/waste-api/internal/metrics"
	"github.com/Brownie44l1/waste-api/internal/model"
	"github.com/Brownie44l1/waste-api/internal/pipeline"
)

// UploadPrefix is where stored uploads are served from
const UploadPrefix = "/static/uploads/"

// formField is the multipart field carrying the image
const formField = "file"

type Handler struct {
	pipeline *pipeline.Pipeline
	cfg      config.ServerConfig
	metrics  *metrics.Metrics
}

func NewHandler(p *pipeline.Pipeline, cfg config.ServerConfig, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.New()
	}
	return &Handler{
		pipeline: p,
		cfg:      cfg,
		metrics:  m,
	}
}

type healthResponse struct {
	Status  string           `json:"status"`
	Models  pipeline.Status  `json:"models"`
	Classes []string         `json:"classes,omitempty"`
	Metrics metrics.Snapshot `json:"metrics"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Models:  h.pipeline.Status(),
		Classes: h.pipeline.Classes(),
		Metrics: h.metrics.Snapshot(),
	})
}

type analyzeResponse struct {
	Success bool `json:"success"`
	*pipeline.Result
	ImageURL     string `json:"image_url"`
	AnnotatedURL string `json:"annotated_url,omitempty"`
}

// Analyze stores the uploaded image, runs the pipeline on it and returns the
// merged result
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	log := logger.C(r.Context())
	start := time.Now()

	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	stored, err := h.receive(w, r)
	if err != nil {
		h.fail(w, r, perr.WithOp(err, "receive"))
		return
	}

	full := h.uploadPath(stored)
	img, format, err := model.DecodeFile(full)
	if err != nil {
		h.fail(w, r, perr.WithOp(err, "decode"))
		return
	}
	log.Debug().Str("file", stored).Str("format", format).
		Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).
		Msg("image decoded")

	res, err := h.pipeline.Analyze(img)
	if err != nil {
		h.fail(w, r, perr.WithOp(perr.Wrap(err, perr.ErrorCodeInference, "Failed to process image"), "analyze"))
		return
	}

	resp := analyzeResponse{
		Success:  true,
		Result:   res,
		ImageURL: path.Join(UploadPrefix, stored),
	}

	if h.cfg.Annotate && res.Detection != nil && res.Detection.Detected {
		name := annotate.AnnotatedName(stored)
		out, err := annotate.Draw(img, res.Detection.Objects, caption(res))
		if err == nil {
			err = annotate.Save(h.uploadPath(name), out)
		}
		if err != nil {
			log.Warn().Err(err).Str("file", stored).Msg("annotation skipped")
		} else {
			resp.AnnotatedURL = path.Join(UploadPrefix, name)
		}
	}

	anomalous := res.Anomaly != nil && res.Anomaly.IsAnomaly
	h.metrics.RecordAnalysis(time.Since(start), anomalous)

	evt := log.Info().Str("file", stored).Bool("anomaly", anomalous)
	if res.Classification != nil {
		evt = evt.Str("waste_type", res.Classification.Category).
			Float32("confidence", res.Classification.Confidence)
	}
	evt.Dur("elapsed", time.Since(start)).Msg("image analyzed")

	JSON(w, http.StatusOK, resp)
}

func caption(res *pipeline.Result) annotate.Caption {
	var c annotate.Caption
	if res.Classification != nil {
		c.Category = res.Classification.Category
		c.Confidence = res.Classification.Confidence
	}
	if res.Anomaly != nil {
		c.Anomaly = res.Anomaly.IsAnomaly
	}
	return c
}

type errorResponse struct {
	Error string `json:"error"`
}

// fail logs err and writes {"error": msg} with the status its code maps to
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.metrics.IncrementErrors()

	status := perr.HTTPStatus(err)
	log := logger.C(r.Context())
	evt := log.Warn()
	if status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	if op := perr.OpOf(err); op != "" {
		evt = evt.Str("op", op)
	}
	evt.Err(err).Int("status", status).Msg("analyze failed")

	JSON(w, status, errorResponse{Error: perr.PublicMessage(err)})
}

// JSON writes v as application/json with the given status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
