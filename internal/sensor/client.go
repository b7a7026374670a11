// Package sensor is the client for the out-of-process rPPG extraction
// service. The kernel is the sole consumer of its observations, via Tick.
package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/mirelabs/coherent/go-kernel/internal/belief"
)

// #region codec

// The sensor service speaks JSON over gRPC; registering the codec lets the
// client invoke methods without generated stubs.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// #endregion codec

// #region wire

const observeMethod = "/rppg.SensorService/GetObservation"

type observeRequest struct{}

// observationWire mirrors the sensor service's response document. Optional
// fields stay nil when the pipeline produced nothing for them.
type observationWire struct {
	TimestampMs   int64    `json:"timestamp_ms"`
	DT            float64  `json:"dt"`
	Visible       bool     `json:"visible"`
	HeartRate     *float64 `json:"heart_rate,omitempty"`
	HRConfidence  *float64 `json:"hr_confidence,omitempty"`
	Respiration   *float64 `json:"respiration,omitempty"`
	StressIndex   *float64 `json:"stress_index,omitempty"`
	FacialValence *float64 `json:"facial_valence,omitempty"`
}

func (w observationWire) toObservation() belief.Observation {
	return belief.Observation{
		Timestamp:     time.UnixMilli(w.TimestampMs),
		DT:            w.DT,
		Visible:       w.Visible,
		HeartRate:     w.HeartRate,
		HRConfidence:  w.HRConfidence,
		Respiration:   w.Respiration,
		StressIndex:   w.StressIndex,
		FacialValence: w.FacialValence,
	}
}

// #endregion wire

// #region client

// invoker abstracts the gRPC connection so the client can be tested without
// a real transport.
type invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// Client wraps the gRPC connection to the sensor service.
type Client struct {
	conn    *grpc.ClientConn
	invoker invoker
}

// NewClient connects to the sensor gRPC server.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, invoker: conn}, nil
}

// NewClientWithInvoker creates a Client with an injected transport.
// Used for testing without a real gRPC connection.
func NewClientWithInvoker(inv invoker) *Client {
	return &Client{invoker: inv}
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion client

// #region observe

// Observe fetches the latest sensor snapshot, retrying transient transport
// failures with exponential backoff. Anything else fails immediately; the
// caller degrades to dead reckoning.
func (c *Client) Observe(ctx context.Context) (belief.Observation, error) {
	var wire observationWire

	op := func() error {
		err := c.invoker.Invoke(ctx, observeMethod, observeRequest{}, &wire,
			grpc.CallContentSubtype(codecName))
		if err == nil {
			return nil
		}
		if status.Code(err) == codes.Unavailable {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return belief.Observation{}, fmt.Errorf("observe rpc: %w", err)
	}
	return wire.toObservation(), nil
}

// #endregion observe
