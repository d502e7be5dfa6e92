package audio

import (
	"os"
	"sync"
	"time"
)

const (
	WAVHeaderSize = 44

	fakeFrameSize = 1024
)

// FakeContext stands in for the platform audio stack in tests and in
// headless runs fed from a WAV file.
type FakeContext struct {
	// DevicesErr and StartErr simulate a refused or missing microphone.
	DevicesErr error
	StartErr   error

	pcm      []byte
	realtime bool

	mu       sync.Mutex
	captures []*FakeCapture
}

// NewFakeContext returns a context whose captures replay pcm (16-bit LE mono)
// as fast as the callback accepts it.
func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{pcm: pcm}
}

// LoadFakeContext replays the PCM body of a WAV file, paced to the sample
// rate when realtime is set.
func LoadFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	if f.DevicesErr != nil {
		return nil, f.DevicesErr
	}
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	c := &FakeCapture{
		pcm:       f.pcm,
		realtime:  f.realtime,
		startErr:  f.StartErr,
		audioDone: make(chan struct{}),
	}
	f.mu.Lock()
	f.captures = append(f.captures, c)
	f.mu.Unlock()
	return c, nil
}

func (f *FakeContext) Close() {}

// Captures returns every capture created so far, oldest first.
func (f *FakeContext) Captures() []*FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeCapture(nil), f.captures...)
}

// Last returns the most recently created capture, or nil.
func (f *FakeContext) Last() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.captures) == 0 {
		return nil
	}
	return f.captures[len(f.captures)-1]
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	startErr  error
	audioDone chan struct{}
	doneOnce  sync.Once

	mu       sync.Mutex
	cb       DataCallback
	started  bool
	closes   int
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once the replayed PCM has been delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

// Feed delivers one chunk to the current callback synchronously.
func (f *FakeCapture) Feed(chunk []byte) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(chunk, uint32(len(chunk)/BytesPerSample))
	}
}

// Closes reports how many times Close was called.
func (f *FakeCapture) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *FakeCapture) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.started = true
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	stop, done := f.stopCh, f.feedDone
	f.mu.Unlock()

	chunkBytes := fakeFrameSize * BytesPerSample
	interval := time.Duration(0)
	if f.realtime {
		interval = time.Duration(fakeFrameSize) * time.Second / SampleRate
	}

	go func() {
		defer close(done)
		defer f.doneOnce.Do(func() { close(f.audioDone) })
		for pos := 0; pos < len(f.pcm); {
			select {
			case <-stop:
				return
			default:
			}
			end := min(pos+chunkBytes, len(f.pcm))
			chunk := make([]byte, end-pos)
			copy(chunk, f.pcm[pos:end])
			f.Feed(chunk)
			pos = end
			if interval > 0 {
				select {
				case <-stop:
					return
				case <-time.After(interval):
				}
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stop, done := f.stopCh, f.feedDone
	f.started = false
	f.mu.Unlock()
	if stop == nil {
		return
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
	<-done
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
}
