// Package engine is the REST client for the Engine, the external service
// that compiles the rule-to-SQL program and evaluates ingested facts.
//
// Every call checks the response status against the codes the endpoint is
// documented to return. Anything else, including an unrecognized status
// value in a response body, is a *ProtocolError.
package engine

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/specialistvlad/grasptest/internal/ctxlog"
	"resty.dev/v3"
)

const pipelinePath = "/v0/pipelines/{pipeline}"

// Client talks to one pipeline of one Engine instance.
type Client struct {
	rest     *resty.Client
	pipeline string
}

// New creates a client for pipeline on the Engine at baseURL.
func New(baseURL, pipeline string) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetPathParam("pipeline", pipeline)
	return &Client{rest: rest, pipeline: pipeline}
}

// Pipeline is the name of the pipeline this client addresses.
func (c *Client) Pipeline() string {
	return c.pipeline
}

// Close releases the underlying HTTP resources.
func (c *Client) Close() error {
	return c.rest.Close()
}

// ProtocolError reports a response the client does not know how to handle.
type ProtocolError struct {
	Op         string
	StatusCode int
	Body       string
	// Msg describes a malformed or unrecognized body; empty for unexpected
	// status codes.
	Msg string
}

func (e *ProtocolError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("engine %s: %s: %s", e.Op, e.Msg, e.Body)
	}
	return fmt.Sprintf("engine %s: unexpected response %d: %s", e.Op, e.StatusCode, e.Body)
}

func malformed(op string, body []byte, format string, args ...any) error {
	return &ProtocolError{Op: op, Body: string(body), Msg: fmt.Sprintf(format, args...)}
}

// check returns the body of res when its status code is one of ok.
func (c *Client) check(ctx context.Context, op string, res *resty.Response, err error, ok ...int) ([]byte, error) {
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", op, err)
	}
	body := []byte(res.String())
	ctxlog.FromContext(ctx).Debug("Engine responded.", "op", op, "status", res.StatusCode(), "bytes", len(body))
	if !slices.Contains(ok, res.StatusCode()) {
		return nil, &ProtocolError{Op: op, StatusCode: res.StatusCode(), Body: string(body)}
	}
	return body, nil
}

// Program returns the program source the pipeline currently holds, or
// exists=false when the pipeline is unknown to the Engine.
func (c *Client) Program(ctx context.Context) (source string, exists bool, err error) {
	const op = "get program"
	res, err := c.rest.R().SetContext(ctx).Get(pipelinePath)
	if err != nil {
		return "", false, fmt.Errorf("engine %s: %w", op, err)
	}
	body := []byte(res.String())
	if unknown, err := unknownPipeline(op, body); err != nil || unknown {
		return "", false, err
	}
	if res.StatusCode() != 200 {
		return "", false, &ProtocolError{Op: op, StatusCode: res.StatusCode(), Body: string(body)}
	}
	source, err = jsonparser.GetString(body, "program_code")
	if err != nil {
		return "", false, malformed(op, body, "missing program_code")
	}
	return source, true, nil
}

// Status returns the pipeline's deployment, storage and program status.
// A pipeline unknown to the Engine yields Status{Exists: false}.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	const op = "get status"
	res, err := c.rest.R().SetContext(ctx).SetQueryParam("selector", "status").Get(pipelinePath)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", op, err)
	}
	body := []byte(res.String())
	if unknown, err := unknownPipeline(op, body); err != nil || unknown {
		return &Status{}, err
	}
	if res.StatusCode() != 200 {
		return nil, &ProtocolError{Op: op, StatusCode: res.StatusCode(), Body: string(body)}
	}
	return decodeStatus(op, body)
}

// unknownPipeline reports whether body is the Engine's UnknownPipelineName
// error. Any other error_code is a protocol error.
func unknownPipeline(op string, body []byte) (bool, error) {
	code, err := jsonparser.GetString(body, "error_code")
	if err != nil {
		return false, nil
	}
	if code == "UnknownPipelineName" {
		return true, nil
	}
	return false, malformed(op, body, "unexpected error_code %s", code)
}

// PutProgram creates or replaces the pipeline with the given program source.
func (c *Client) PutProgram(ctx context.Context, source string) error {
	res, err := c.rest.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"name": c.pipeline, "program_code": source}).
		Put(pipelinePath)
	_, err = c.check(ctx, "put program", res, err, 200, 201)
	return err
}

// Start asks the Engine to start the pipeline.
func (c *Client) Start(ctx context.Context) error {
	res, err := c.rest.R().SetContext(ctx).Post(pipelinePath + "/start")
	_, err = c.check(ctx, "start", res, err, 200, 201, 202)
	return err
}

// Stop asks the Engine to stop the pipeline; force skips checkpointing.
func (c *Client) Stop(ctx context.Context, force bool) error {
	res, err := c.rest.R().SetContext(ctx).
		SetQueryParam("force", strconv.FormatBool(force)).
		Post(pipelinePath + "/stop")
	_, err = c.check(ctx, "stop", res, err, 200, 202)
	return err
}

// Clear asks the Engine to drop the pipeline's storage.
func (c *Client) Clear(ctx context.Context) error {
	res, err := c.rest.R().SetContext(ctx).Post(pipelinePath + "/clear")
	_, err = c.check(ctx, "clear", res, err, 200, 202)
	return err
}

// StartTransaction opens a transaction bracketing subsequent writes.
func (c *Client) StartTransaction(ctx context.Context) error {
	res, err := c.rest.R().SetContext(ctx).Post(pipelinePath + "/start_transaction")
	_, err = c.check(ctx, "start transaction", res, err, 200, 201)
	return err
}

// CommitTransaction commits the open transaction. The commit completes
// asynchronously; watch TransactionStatus.
func (c *Client) CommitTransaction(ctx context.Context) error {
	res, err := c.rest.R().SetContext(ctx).Post(pipelinePath + "/commit_transaction")
	_, err = c.check(ctx, "commit transaction", res, err, 200, 201)
	return err
}

// TransactionStatus reads global_metrics.transaction_status from the
// pipeline statistics.
func (c *Client) TransactionStatus(ctx context.Context) (TransactionStatus, error) {
	const op = "get stats"
	res, err := c.rest.R().SetContext(ctx).Get(pipelinePath + "/stats")
	body, err := c.check(ctx, op, res, err, 200)
	if err != nil {
		return "", err
	}
	v, err := jsonparser.GetString(body, "global_metrics", "transaction_status")
	if err != nil {
		return "", malformed(op, body, "missing transaction_status")
	}
	return parseTransactionStatus(op, body, v)
}

// Insert writes rows to table as one atomic batch and returns the
// completion token of the batch. rows must marshal to a JSON array.
func (c *Client) Insert(ctx context.Context, table string, rows any) (string, error) {
	op := "insert " + table
	res, err := c.rest.R().SetContext(ctx).
		SetPathParam("table", table).
		SetQueryParams(map[string]string{"update_format": "raw", "array": "true", "format": "json"}).
		SetHeader("Content-Type", "application/json").
		SetBody(rows).
		Post(pipelinePath + "/ingress/{table}")
	body, err := c.check(ctx, op, res, err, 200, 201)
	if err != nil {
		return "", err
	}
	token, err := tokenString(body)
	if err != nil {
		return "", malformed(op, body, "missing token")
	}
	return token, nil
}

// tokenString accepts the token as a JSON string or number.
func tokenString(body []byte) (string, error) {
	v, typ, _, err := jsonparser.Get(body, "token")
	if err != nil {
		return "", err
	}
	switch typ {
	case jsonparser.String:
		return jsonparser.ParseString(v)
	case jsonparser.Number:
		return string(v), nil
	default:
		return "", jsonparser.MalformedValueError
	}
}

// IngestStatus reports whether the batch identified by token has been fully
// processed.
func (c *Client) IngestStatus(ctx context.Context, token string) (IngestStatus, error) {
	const op = "get completion status"
	res, err := c.rest.R().SetContext(ctx).
		SetQueryParam("token", token).
		Get(pipelinePath + "/completion_status")
	body, err := c.check(ctx, op, res, err, 200)
	if err != nil {
		return "", err
	}
	v, err := jsonparser.GetString(body, "status")
	if err != nil {
		return "", malformed(op, body, "missing status")
	}
	return parseIngestStatus(op, body, v)
}

// Query runs a read-only ad hoc SQL query against the pipeline's
// materialized state.
func (c *Client) Query(ctx context.Context, sql string) ([]Row, error) {
	const op = "query"
	res, err := c.rest.R().SetContext(ctx).
		SetQueryParams(map[string]string{"sql": sql, "format": "json", "array": "true"}).
		Get(pipelinePath + "/query")
	body, err := c.check(ctx, op, res, err, 200)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, malformed(op, body, "malformed rows: %v", err)
	}
	return rows, nil
}
