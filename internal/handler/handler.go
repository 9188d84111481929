// Package handler adapts Lambda invocations to the transformer and maps each
// outcome onto the result record returned to the caller.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aws/aws-lambda-go/events"

	"orders_etl/internal/etlerr"
	"orders_etl/internal/model"
	"orders_etl/internal/pipeline"
	"orders_etl/internal/telemetry"
)

// Response is the result record of one invocation.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// Processor is the part of the transformer the handler depends on.
type Processor interface {
	Process(ctx context.Context, src model.ObjectRef) (*pipeline.Outcome, error)
}

// Handler serves Lambda invocations.
type Handler struct {
	proc   Processor
	pusher *telemetry.Pusher
	// ReturnError makes failed processing also return a Lambda error, which
	// lets the platform's async retry re-deliver the event.
	ReturnError bool
}

func New(proc Processor, pusher *telemetry.Pusher, returnError bool) *Handler {
	return &Handler{proc: proc, pusher: pusher, ReturnError: returnError}
}

// directInvocation is the minimal payload shape.
type directInvocation struct {
	ObjectBucket string `json:"objectBucket"`
	ObjectKey    string `json:"objectKey"`
}

// eventBridgeObjectCreated is the S3 "Object Created" event routed through
// EventBridge. Its key is not URL-encoded.
type eventBridgeObjectCreated struct {
	DetailType string `json:"detail-type"`
	Detail     struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"detail"`
}

// ParseEvent extracts the object reference from any supported payload.
func ParseEvent(raw json.RawMessage) (model.ObjectRef, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return model.ObjectRef{}, etlerr.New(etlerr.KindInvalidInvocation, "parse event", err)
	}

	switch {
	case probe["Records"] != nil:
		var ev events.S3Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return model.ObjectRef{}, etlerr.New(etlerr.KindInvalidInvocation, "parse s3 event", err)
		}
		if len(ev.Records) == 0 {
			return model.ObjectRef{}, etlerr.Newf(etlerr.KindInvalidInvocation, "parse s3 event", "event has no records")
		}
		if len(ev.Records) > 1 {
			slog.Warn("s3 event carries more than one record, processing the first", "records", len(ev.Records))
		}
		rec := ev.Records[0].S3
		key, err := url.QueryUnescape(rec.Object.Key)
		if err != nil {
			return model.ObjectRef{}, etlerr.New(etlerr.KindInvalidInvocation, "decode object key", err)
		}
		return validRef(rec.Bucket.Name, key)

	case probe["detail"] != nil:
		var ev eventBridgeObjectCreated
		if err := json.Unmarshal(raw, &ev); err != nil {
			return model.ObjectRef{}, etlerr.New(etlerr.KindInvalidInvocation, "parse eventbridge event", err)
		}
		return validRef(ev.Detail.Bucket.Name, ev.Detail.Object.Key)

	case probe["objectBucket"] != nil || probe["objectKey"] != nil:
		var ev directInvocation
		if err := json.Unmarshal(raw, &ev); err != nil {
			return model.ObjectRef{}, etlerr.New(etlerr.KindInvalidInvocation, "parse invocation", err)
		}
		return validRef(ev.ObjectBucket, ev.ObjectKey)
	}
	return model.ObjectRef{}, etlerr.Newf(etlerr.KindInvalidInvocation, "parse event", "unrecognized event shape")
}

func validRef(bucket, key string) (model.ObjectRef, error) {
	if bucket == "" || key == "" {
		return model.ObjectRef{}, etlerr.Newf(etlerr.KindInvalidInvocation, "parse event",
			"bucket and key are required (got %q, %q)", bucket, key)
	}
	return model.ObjectRef{Bucket: bucket, Key: key}, nil
}

// Handle is the Lambda entry point.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (Response, error) {
	resp, err := h.handle(ctx, raw)
	if perr := h.pusher.Push(ctx); perr != nil {
		slog.Warn("metrics push failed", "error", perr)
	}
	return resp, err
}

func (h *Handler) handle(ctx context.Context, raw json.RawMessage) (Response, error) {
	ref, err := ParseEvent(raw)
	if err != nil {
		slog.Error("rejected invocation", "error", err)
		return Response{StatusCode: http.StatusBadRequest, Message: err.Error()}, nil
	}

	out, err := h.proc.Process(ctx, ref)
	if err != nil {
		resp := Response{StatusCode: etlerr.KindOf(err).StatusCode(), Message: err.Error()}
		if h.ReturnError && resp.StatusCode == http.StatusInternalServerError {
			return resp, err
		}
		return resp, nil
	}
	return Respond(out), nil
}

// Respond builds the success record for an outcome.
func Respond(out *pipeline.Outcome) Response {
	if out.Status == pipeline.StatusSkipped {
		return Response{
			StatusCode: etlerr.KindIneligibleInput.StatusCode(),
			Message: fmt.Sprintf("skipped %s: %s: not a %s file",
				out.Source.Key, etlerr.KindIneligibleInput, pipeline.EligibleSuffix),
		}
	}
	return Response{
		StatusCode: http.StatusOK,
		Message: fmt.Sprintf("processed %s: wrote %d records to %s",
			out.Source.Key, out.Stats.Rows, out.Target.String()),
	}
}
