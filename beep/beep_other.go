//go:build !linux

package beep

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// malgoPlayer keeps one playback device open and swaps the buffer it
// drains from the data callback.
type malgoPlayer struct {
	once   sync.Once
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	buf atomic.Pointer[[]byte]
	pos atomic.Uint32
}

var system = &malgoPlayer{}

// System plays through the platform audio stack via miniaudio. Sounds are
// dropped when no output device is available.
func System() Player { return system }

func (p *malgoPlayer) init() {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	p.ctx = ctx
	if err := p.open(); err != nil {
		ctx.Uninit()
		p.ctx = nil
	}
}

func (p *malgoPlayer) open() error {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = sampleRate
	dev, err := malgo.InitDevice(p.ctx.Context, cfg, malgo.DeviceCallbacks{Data: p.fill})
	if err != nil {
		return err
	}
	p.device = dev
	return nil
}

func (p *malgoPlayer) fill(out, _ []byte, frames uint32) {
	clear(out)
	b := p.buf.Load()
	if b == nil {
		return
	}
	pos := p.pos.Load()
	n := copy(out[:min(int(frames)*2, len(out))], (*b)[pos:])
	p.pos.Store(pos + uint32(n))
}

func (p *malgoPlayer) Play(s Sound) {
	samples := Samples(s)
	if len(samples) == 0 {
		return
	}
	pcm := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	go p.play(pcm)
}

func (p *malgoPlayer) play(pcm []byte) {
	p.once.Do(p.init)
	if p.ctx == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.device.Stop()
	p.pos.Store(0)
	p.buf.Store(&pcm)
	if err := p.device.Start(); err != nil {
		// The device goes stale across sleep/wake; reopen once.
		p.device.Uninit()
		if err := p.open(); err != nil {
			p.buf.Store(nil)
			return
		}
		if err := p.device.Start(); err != nil {
			p.buf.Store(nil)
		}
	}
}
