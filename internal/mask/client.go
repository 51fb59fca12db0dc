// Package mask talks to the optional segmentation service that refines
// rectangular regions into polygon masks. The client is strictly best
// effort: requests are fired asynchronously, slow or failed responses
// are dropped, and the render loop never waits on it.
package mask

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Danvdl/SecureStudio/internal/detector"
)

// Defaults for the client budget. At most maxInFlight requests are
// outstanding; further Submit calls are dropped, not queued.
const (
	maxInFlight    = 4
	requestTimeout = 200 * time.Millisecond
	resultsBuffer  = 16
)

// Request identifies one region of one frame.
type Request struct {
	FrameSeq uint64
	TrackID  int
	Box      detector.Box
}

// Result carries a polygon mask back to the pipeline. FrameSeq lets
// the consumer discard results that arrive after the frame has already
// been published.
type Result struct {
	FrameSeq uint64
	TrackID  int
	Polygon  []image.Point
}

type wireRequest struct {
	RequestID string  `json:"request_id"`
	X         float32 `json:"x"`
	Y         float32 `json:"y"`
	W         float32 `json:"w"`
	H         float32 `json:"h"`
}

type wireResponse struct {
	Polygon [][2]int `json:"polygon"`
}

// Client is the async segmentation client. The zero value is not
// usable; use NewClient.
type Client struct {
	url     string
	http    *http.Client
	results chan Result

	mu       sync.Mutex
	inFlight int
	closed   bool
	wg       sync.WaitGroup
}

// NewClient creates a client for the service at url. An empty url
// returns nil, which callers treat as refinement disabled.
func NewClient(url string) *Client {
	if url == "" {
		return nil
	}
	return &Client{
		url:     url,
		http:    &http.Client{Timeout: requestTimeout},
		results: make(chan Result, resultsBuffer),
	}
}

// Submit fires a segmentation request without blocking. It returns
// false when the request was dropped because the in-flight budget is
// exhausted or the client is closed.
func (c *Client) Submit(req Request) bool {
	c.mu.Lock()
	if c.closed || c.inFlight >= maxInFlight {
		c.mu.Unlock()
		return false
	}
	c.inFlight++
	c.wg.Add(1)
	c.mu.Unlock()

	go c.send(req)
	return true
}

// Results returns the channel delivering finished masks.
func (c *Client) Results() <-chan Result {
	return c.results
}

// Close waits for in-flight requests to finish and stops the client.
// Further Submit calls return false.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	close(c.results)
}

func (c *Client) send(req Request) {
	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
		c.wg.Done()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	body, err := json.Marshal(wireRequest{
		RequestID: uuid.New().String(),
		X:         req.Box.X,
		Y:         req.Box.Y,
		W:         req.Box.W,
		H:         req.Box.H,
	})
	if err != nil {
		return
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Timeouts and refusals are expected when the service is
		// degraded; the rectangle fallback already covers the region.
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("mask: service returned %s", resp.Status)
		return
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		log.Printf("mask: bad response: %v", err)
		return
	}
	if len(wire.Polygon) < 3 {
		return
	}

	polygon := make([]image.Point, len(wire.Polygon))
	for i, p := range wire.Polygon {
		polygon[i] = image.Point{X: p[0], Y: p[1]}
	}

	select {
	case c.results <- Result{FrameSeq: req.FrameSeq, TrackID: req.TrackID, Polygon: polygon}:
	default:
		// Consumer is behind; drop rather than block.
	}
}

// String describes the client for logs.
func (c *Client) String() string {
	return fmt.Sprintf("mask client %s", c.url)
}
