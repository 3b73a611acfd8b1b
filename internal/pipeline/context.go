package pipeline

import (
	"fmt"
	"time"

	"github.com/BrunoKrugel/bikefit-vision/internal/model"
)

// UIContext collects the notifications and widget updates stages raise
// during one frame. The engine, not the stage, is responsible for
// filling in camera_id on widget data — see UpdateWidget.
type UIContext struct {
	cameraID      int
	notifications []model.Notification
	widgets       []model.WidgetUpdate
}

func newUIContext(cameraID int) *UIContext {
	return &UIContext{cameraID: cameraID}
}

// Notify appends a transient UI toast. An unrecognized level falls back
// to info.
func (ui *UIContext) Notify(title, message string, level model.NotificationType, duration float64) {
	switch level {
	case model.NotificationInfo, model.NotificationSuccess, model.NotificationWarning, model.NotificationError:
	default:
		level = model.NotificationInfo
	}
	ui.notifications = append(ui.notifications, model.Notification{
		ID:       fmt.Sprintf("%d", time.Now().UnixNano()),
		Title:    title,
		Message:  message,
		Type:     level,
		Duration: duration,
	})
}

// UpdateWidget appends a widget update. If data is a map and it has no
// camera_id key, the engine injects one — a post-condition of the engine,
// not of the calling stage, so plugins stay unaware of their host worker.
func (ui *UIContext) UpdateWidget(widgetID, title string, data any, widgetType model.WidgetType) {
	if m, ok := data.(map[string]any); ok {
		enriched := make(map[string]any, len(m)+1)
		for k, v := range m {
			enriched[k] = v
		}
		if _, present := enriched["camera_id"]; !present {
			enriched["camera_id"] = ui.cameraID
		}
		data = enriched
	}
	ui.widgets = append(ui.widgets, model.WidgetUpdate{
		WidgetID: widgetID,
		Type:     widgetType,
		Title:    title,
		Data:     data,
	})
}

func (ui *UIContext) snapshot() ([]model.Notification, []model.WidgetUpdate) {
	return ui.notifications, ui.widgets
}

// FrameContext is created by the worker once per frame. It owns the
// pixel reference, the frame's immutable header fields, a namespaced
// key-value store stages use to hand results to each other, an error
// sink, and the UI sink. It is discarded after the frame is published.
type FrameContext struct {
	Frame                   []byte
	Width, Height, Channels int
	FrameID                 int64
	Timestamp               float64
	CameraID                int
	Config                  model.CameraConfig

	UI *UIContext

	store  map[string]map[string]any
	errors []model.ModuleError
}

// NewFrameContext constructs a context for one frame. width/height/channels
// describe how Frame's row-major bytes are laid out, so stages can index
// into it without needing the ring's shape passed separately.
func NewFrameContext(frame []byte, width, height, channels int, frameID int64, timestamp float64, cameraID int, cfg model.CameraConfig) *FrameContext {
	return &FrameContext{
		Frame:     frame,
		Width:     width,
		Height:    height,
		Channels:  channels,
		FrameID:   frameID,
		Timestamp: timestamp,
		CameraID:  cameraID,
		Config:    cfg,
		UI:        newUIContext(cameraID),
		store:     make(map[string]map[string]any),
	}
}

// SetData stores value under namespace/key for later stages to read.
func (c *FrameContext) SetData(namespace, key string, value any) {
	ns, ok := c.store[namespace]
	if !ok {
		ns = make(map[string]any)
		c.store[namespace] = ns
	}
	ns[key] = value
}

// GetData returns the value stored under namespace/key, or dflt if absent.
func (c *FrameContext) GetData(namespace, key string, dflt any) any {
	ns, ok := c.store[namespace]
	if !ok {
		return dflt
	}
	v, ok := ns[key]
	if !ok {
		return dflt
	}
	return v
}

// HasData reports whether namespace/key has been set.
func (c *FrameContext) HasData(namespace, key string) bool {
	ns, ok := c.store[namespace]
	if !ok {
		return false
	}
	_, ok = ns[key]
	return ok
}

// AddError records a stage failure into the frame's error list, surfaced
// to the client through the stream channel rather than propagated out of
// the engine.
func (c *FrameContext) AddError(source, message string, severity ...string) {
	sev := "error"
	if len(severity) > 0 {
		sev = severity[0]
	}
	c.errors = append(c.errors, model.ModuleError{
		Source:    source,
		Message:   message,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Severity:  sev,
	})
}

// DataSnapshot returns the raw namespaced store, used when assembling the
// stream payload's results field.
func (c *FrameContext) DataSnapshot() map[string]map[string]any {
	return c.store
}
