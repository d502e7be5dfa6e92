package audio

import (
	"encoding/binary"
	"math"
	"math/cmplx"
)

const (
	WaveformPoints = 64

	// Largest analysis window handed to Spectrum.
	spectrumWindow = 2048

	// RMS at which the meter pins to 100. Speech close to a laptop mic
	// sits around 0.05-0.2.
	fullScaleRMS = 0.35
)

// Samples decodes 16-bit little-endian PCM into [-1, 1).
func Samples(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Level maps the RMS of samples onto the 0-100 meter scale.
func Level(samples []float64) int {
	l := int(math.Round(RMS(samples) / fullScaleRMS * 100))
	return max(0, min(l, 100))
}

// Waveform downsamples samples to n evenly spaced points. Short input is
// zero-padded so the result always has length n.
func Waveform(samples []float64, n int) []float64 {
	out := make([]float64, n)
	if len(samples) < n {
		copy(out, samples)
		return out
	}
	step := len(samples) / n
	for i := range out {
		out[i] = samples[i*step]
	}
	return out
}

// Spectrum returns the magnitude of the first half of a Hann-windowed FFT
// over the trailing power-of-two window of samples.
func Spectrum(samples []float64) []float64 {
	n := 1
	for n*2 <= len(samples) && n*2 <= spectrumWindow {
		n *= 2
	}
	if n < 2 {
		return nil
	}
	window := samples[len(samples)-n:]

	buf := make([]complex128, n)
	for i, s := range window {
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		buf[i] = complex(s*w, 0)
	}
	fft(buf)

	mags := make([]float64, n/2)
	for i := range mags {
		mags[i] = cmplx.Abs(buf[i])
	}
	return mags
}

// DominantFrequency picks the bin with the largest magnitude and maps it
// linearly onto [0, sampleRate/2). It is a coarse peak estimate, not a
// pitch detector.
func DominantFrequency(mags []float64, sampleRate int) int {
	if len(mags) == 0 {
		return 0
	}
	peak := 0
	for i, m := range mags {
		if m > mags[peak] {
			peak = i
		}
	}
	return int(math.Round(float64(peak) / float64(len(mags)) * float64(sampleRate) / 2))
}

// fft is an in-place iterative radix-2 transform; len(a) must be a power of two.
func fft(a []complex128) {
	n := len(a)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		step := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < size/2; k++ {
				u := a[start+k]
				v := a[start+k+size/2] * w
				a[start+k] = u + v
				a[start+k+size/2] = u - v
				w *= step
			}
		}
	}
}

// Meter summarizes one chunk for the audio_level event.
type Meter struct {
	Level     int
	Frequency int
	Waveform  []float64
}

func Measure(pcm []byte, sampleRate int) Meter {
	s := Samples(pcm)
	return Meter{
		Level:     Level(s),
		Frequency: DominantFrequency(Spectrum(s), sampleRate),
		Waveform:  Waveform(s, WaveformPoints),
	}
}
