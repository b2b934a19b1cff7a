package sink

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spitest"
	"periph.io/x/devices/v3/nrzled"

	huecolor "github.com/dokzlo13/huestrip/internal/color"
	"github.com/dokzlo13/huestrip/internal/frame"
)

type fakeDrawer struct {
	mu     sync.Mutex
	n      int
	drawn  []*image.NRGBA
	halted bool
	drawC  chan struct{}
}

func newFakeDrawer(n int) *fakeDrawer {
	return &fakeDrawer{n: n, drawC: make(chan struct{}, 16)}
}

func (d *fakeDrawer) String() string          { return "fake" }
func (d *fakeDrawer) ColorModel() color.Model { return color.NRGBAModel }
func (d *fakeDrawer) Bounds() image.Rectangle { return image.Rect(0, 0, d.n, 1) }

func (d *fakeDrawer) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.halted = true
	return nil
}

func (d *fakeDrawer) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	img := image.NewNRGBA(r)
	draw.Draw(img, r, src, sp, draw.Src)
	d.mu.Lock()
	d.drawn = append(d.drawn, img)
	d.mu.Unlock()
	select {
	case d.drawC <- struct{}{}:
	default:
	}
	return nil
}

func (d *fakeDrawer) draws() []*image.NRGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*image.NRGBA(nil), d.drawn...)
}

func testFrame(colors ...huecolor.RGB) frame.Frame {
	return frame.Frame{ID: 0, Name: "Hue", Colors: colors}
}

func TestFrameImage(t *testing.T) {
	img := FrameImage(testFrame(
		huecolor.RGB{R: 255, G: 127.6, B: 0},
		huecolor.RGB{R: -3, G: 300, B: 12.4},
	))

	assert.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, G: 128, B: 0, A: 255}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 0, G: 255, B: 12, A: 255}, img.NRGBAAt(1, 0))
}

func TestFrameImage_Empty(t *testing.T) {
	img := FrameImage(testFrame())
	assert.True(t, img.Bounds().Empty())
}

func TestDrawer_DrawsAndHalts(t *testing.T) {
	dev := newFakeDrawer(2)
	closed := false
	d := NewDrawer("fake", dev, 0, func() error {
		closed = true
		return dev.Halt()
	})
	assert.Equal(t, "fake", d.Name())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Emit(testFrame(huecolor.RGB{R: 10}, huecolor.RGB{B: 20}))

	select {
	case <-dev.drawC:
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not drawn")
	}

	cancel()
	require.NoError(t, <-done)

	draws := dev.draws()
	require.Len(t, draws, 1)
	assert.Equal(t, uint8(10), draws[0].NRGBAAt(0, 0).R)
	assert.Equal(t, uint8(20), draws[0].NRGBAAt(1, 0).B)
	assert.True(t, closed)
	assert.True(t, dev.halted)
}

func TestDrawer_FlushesPendingOnExit(t *testing.T) {
	dev := newFakeDrawer(1)
	d := NewDrawer("fake", dev, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.Emit(testFrame(huecolor.RGB{G: 42}))
	require.NoError(t, d.Run(ctx))

	// Either the select picked the frame or the exit path flushed it.
	draws := dev.draws()
	require.NotEmpty(t, draws)
	assert.Equal(t, uint8(42), draws[len(draws)-1].NRGBAAt(0, 0).G)
}

func TestDrawer_FPSCapSkipsFrames(t *testing.T) {
	dev := newFakeDrawer(1)
	d := NewDrawer("fake", dev, 1, nil)
	assert.Equal(t, time.Second, d.minDelay)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Emit(testFrame(huecolor.RGB{R: 1}))
	select {
	case <-dev.drawC:
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not drawn")
	}

	for i := 0; i < 5; i++ {
		d.Emit(testFrame(huecolor.RGB{R: 2}))
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, dev.draws(), 1)

	cancel()
	require.NoError(t, <-done)

	// The newest held frame is drawn on exit.
	draws := dev.draws()
	require.Len(t, draws, 2)
	assert.Equal(t, uint8(2), draws[1].NRGBAAt(0, 0).R)
}

func TestDrawer_FPSCapDrawsHeldFrameLater(t *testing.T) {
	dev := newFakeDrawer(1)
	d := NewDrawer("fake", dev, 20, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Emit(testFrame(huecolor.RGB{R: 1}))
	select {
	case <-dev.drawC:
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not drawn")
	}

	// A final black frame inside the 50ms window, with nothing after it.
	d.Emit(testFrame(huecolor.RGB{}))
	require.Eventually(t, func() bool { return len(dev.draws()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint8(0), dev.draws()[1].NRGBAAt(0, 0).R)
}

func TestDrawer_NRZLED(t *testing.T) {
	var buf bytes.Buffer
	opts := nrzled.Opts{NumPixels: 3, Channels: 3, Freq: 2500 * physic.KiloHertz}
	dev, err := nrzled.NewSPI(spitest.NewRecordRaw(&buf), &opts)
	require.NoError(t, err)

	d := NewDrawer("spi", dev, 0, nil)
	require.NoError(t, d.draw(testFrame(
		huecolor.RGB{R: 255},
		huecolor.RGB{G: 255},
		huecolor.RGB{B: 255},
	)))
	assert.NotZero(t, buf.Len())
}
