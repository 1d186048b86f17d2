package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/kroma-labs/sentinel-executor/executor"
	"github.com/kroma-labs/sentinel-executor/httpserver"
	"github.com/kroma-labs/sentinel-executor/limits"
	"github.com/kroma-labs/sentinel-executor/logging"
	"github.com/kroma-labs/sentinel-executor/txmanager"
)

// HeaderTransactionID carries the id of a started transaction.
const HeaderTransactionID = "Prisma-Transaction-Id"

type startTransactionRequest struct {
	Timeout        *int64 `json:"timeout"`
	MaxWait        *int64 `json:"maxWait"`
	IsolationLevel string `json:"isolationLevel"`
}

type startTransactionResponse struct {
	ID         string      `json:"id"`
	Extensions *Extensions `json:"extensions,omitempty"`
}

type emptyResponse struct {
	Extensions *Extensions `json:"extensions,omitempty"`
}

func (h *handler) connectionInfo(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, h.exec.ConnectionInfo(r.Context()))
}

func (h *handler) query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req executor.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, badRequest("invalid request body", err))
		return
	}
	if len(req.Plan) == 0 {
		h.writeError(w, r, badRequest("request body has no plan", nil))
		return
	}

	lim := h.limitsFrom(ctx)
	data, err := h.exec.Query(ctx, req, lim, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := httpserver.Response[any]{Data: data}
	if ext := extensionsFrom(ctx); ext != nil {
		resp.Extensions = ext
	}
	body, err := json.Marshal(resp)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if lim.MaxResponseSize > 0 && int64(len(body)) > lim.MaxResponseSize {
		h.writeError(w, r, limits.NewResponseSizeError(int64(len(body)), lim.MaxResponseSize))
		return
	}
	httpserver.WriteRawJSON(w, http.StatusOK, body)
}

func (h *handler) startTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, badRequest("invalid request body", err))
		return
	}

	opts := txmanager.Options{IsolationLevel: req.IsolationLevel}
	if req.Timeout != nil {
		if *req.Timeout < 0 {
			h.writeError(w, r, badRequest("timeout must not be negative", nil))
			return
		}
		opts.Timeout = time.Duration(*req.Timeout) * time.Millisecond
	}
	if req.MaxWait != nil {
		if *req.MaxWait < 0 {
			h.writeError(w, r, badRequest("maxWait must not be negative", nil))
			return
		}
		opts.MaxWait = time.Duration(*req.MaxWait) * time.Millisecond
	}

	info, err := h.exec.StartTransaction(ctx, opts, h.limitsFrom(ctx))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set(HeaderTransactionID, info.ID)
	httpserver.WriteJSON(w, http.StatusOK, startTransactionResponse{
		ID:         info.ID,
		Extensions: extensionsFrom(ctx),
	})
}

func (h *handler) commitTransaction(w http.ResponseWriter, r *http.Request) {
	h.finishTransaction(w, r, h.exec.CommitTransaction)
}

func (h *handler) rollbackTransaction(w http.ResponseWriter, r *http.Request) {
	h.finishTransaction(w, r, h.exec.RollbackTransaction)
}

func (h *handler) finishTransaction(
	w http.ResponseWriter,
	r *http.Request,
	finish func(ctx context.Context, id string) error,
) {
	ctx := r.Context()
	if err := finish(ctx, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, emptyResponse{Extensions: extensionsFrom(ctx)})
}

// writeError maps err to its response. Unexpected errors are also logged.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logging.Error(ctx, "request failed", logging.String("error", body.Error))
	}
	if ext := extensionsFrom(ctx); ext != nil {
		body.Extensions = ext
	}
	httpserver.WriteError(w, status, body)
}
