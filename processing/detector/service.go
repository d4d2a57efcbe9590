package detector

import (
	"bytes"
	"context"
	"image"
	"net/url"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"sitesafety/internal/models"
)

const (
	msgLoad   = "load"
	msgDetect = "detect"
	msgPing   = "ping"

	jpegQuality = 95
)

type inferenceRequest struct {
	Type       string  `json:"type"`
	ID         string  `json:"id"`
	Model      string  `json:"model,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

type inferenceReply struct {
	Type       string             `json:"type"`
	ID         string             `json:"id"`
	Detections []models.Detection `json:"detections"`
	Error      string             `json:"error,omitempty"`
}

// RemoteDetector runs a model hosted by the inference server over a
// websocket. One request is in flight at a time; a broken connection is
// dropped and redialled on the next call.
type RemoteDetector struct {
	serverURL string
	modelPath string
	logger    golog.Logger
	dialer    *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewRemoteDetector(host, modelPath string, logger golog.Logger) *RemoteDetector {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	return &RemoteDetector{
		serverURL: u.String(),
		modelPath: modelPath,
		logger:    logger,
		dialer:    websocket.DefaultDialer,
	}
}

// Load asks the server to load the model weights.
func (d *RemoteDetector) Load(ctx context.Context) error {
	_, err := d.roundTrip(ctx, inferenceRequest{Type: msgLoad, Model: d.modelPath}, nil)
	return err
}

// Ping checks that the server answers.
func (d *RemoteDetector) Ping(ctx context.Context) error {
	_, err := d.roundTrip(ctx, inferenceRequest{Type: msgPing}, nil)
	return err
}

func (d *RemoteDetector) Detect(ctx context.Context, img image.Image, conf float64) ([]models.Detection, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, errors.Wrap(err, "jpeg encode")
	}

	reply, err := d.roundTrip(ctx, inferenceRequest{
		Type:       msgDetect,
		Model:      d.modelPath,
		Confidence: conf,
	}, buf.Bytes())
	if err != nil {
		return nil, err
	}

	return reply.Detections, nil
}

func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropLocked()
}

func (d *RemoteDetector) roundTrip(ctx context.Context, req inferenceRequest, payload []byte) (*inferenceReply, error) {
	req.ID = uuid.NewString()

	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connectLocked(ctx)
	if err != nil {
		return nil, err
	}

	reply, err := exchange(ctx, conn, req, payload)
	if err != nil {
		d.logger.Warnw("connection lost", "url", d.serverURL, "error", err)
		if cerr := d.dropLocked(); cerr != nil {
			d.logger.Debugw("close after failure", "error", cerr)
		}
		return nil, err
	}

	if reply.ID != req.ID {
		_ = d.dropLocked()
		return nil, errors.Errorf("reply id %q does not match request %q", reply.ID, req.ID)
	}
	if reply.Error != "" {
		return nil, errors.Errorf("inference server: %s", reply.Error)
	}

	return reply, nil
}

func exchange(ctx context.Context, conn *websocket.Conn, req inferenceRequest, payload []byte) (*inferenceReply, error) {
	// zero deadline clears any left from a previous call
	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set write deadline")
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set read deadline")
	}

	if err := conn.WriteJSON(req); err != nil {
		return nil, errors.Wrapf(err, "send %s request", req.Type)
	}
	if payload != nil {
		if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			return nil, errors.Wrap(err, "send image")
		}
	}

	var reply inferenceReply
	if err := conn.ReadJSON(&reply); err != nil {
		return nil, errors.Wrapf(err, "read %s reply", req.Type)
	}
	return &reply, nil
}

func (d *RemoteDetector) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}

	d.logger.Debugw("connecting to detector server", "url", d.serverURL)
	conn, _, err := d.dialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", d.serverURL)
	}
	d.logger.Infow("connected to detection server", "url", d.serverURL, "model", d.modelPath)

	d.conn = conn
	return conn, nil
}

func (d *RemoteDetector) dropLocked() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
