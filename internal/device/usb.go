package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"
)

const (
	// ReSpeakerVendorID and ReSpeakerProductID identify the USB microphone array
	ReSpeakerVendorID  = 0x2886
	ReSpeakerProductID = 0x0018
)

// Handle owns the libusb context and the opened accessory.
// It is created once and passed to the Reader; Close releases both.
type Handle struct {
	ctx *gousb.Context
	dev *gousb.Device

	closeOnce sync.Once
	closeErr  error
}

// Open finds the device with the given vendor/product pair. Every control
// transfer on the returned handle is bounded by timeout.
func Open(vendorID, productID uint16, timeout time.Duration) (*Handle, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vendorID), gousb.ID(productID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: open %04x:%04x: %v", ErrDeviceIO, vendorID, productID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: device %04x:%04x not present", ErrDeviceIO, vendorID, productID)
	}

	dev.ControlTimeout = timeout

	return &Handle{ctx: ctx, dev: dev}, nil
}

// Control forwards to the underlying device
func (h *Handle) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	return h.dev.Control(rType, request, val, idx, data)
}

// Close is idempotent
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = errors.Join(h.dev.Close(), h.ctx.Close())
	})
	return h.closeErr
}
