package stt

import (
	"sync"
	"time"
)

// DefaultKeepAliveInterval is the idle duration after which a keep-alive
// session injects a silence frame into the upstream connection.
const DefaultKeepAliveInterval = 10 * time.Second

// silenceFrameDuration is the length of PCM audio synthesized for each
// injected keep-alive frame.
const silenceFrameDuration = 100 * time.Millisecond

// bytesPerSample is fixed at 16-bit PCM, matching every provider in this
// package.
const bytesPerSample = 2

// WithKeepAlive wraps session so that a background timer injects a
// zero-valued PCM frame into the upstream whenever interval has elapsed
// since the last real SendAudio call. This defeats an upstream's
// idle-disconnect timer during silence and is unobservable to the client: the
// injected frame never reaches Partials or Finals, since providers do not
// emit transcripts for silent audio.
//
// sampleRate and channels must match the values negotiated for the session
// (the same ones passed to StartStream) so the injected frame has the
// correct byte length. A non-positive interval falls back to
// DefaultKeepAliveInterval.
func WithKeepAlive(session SessionHandle, sampleRate, channels int, interval time.Duration) SessionHandle {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	k := &keepAliveSession{
		SessionHandle: session,
		silenceFrame:  make([]byte, silenceFrameBytes(sampleRate, channels)),
		interval:      interval,
		lastAudioAt:   time.Now(),
		done:          make(chan struct{}),
	}
	k.wg.Add(1)
	go k.run()
	return k
}

// keepAliveSession decorates a SessionHandle with the keep-alive timer.
// Embedding SessionHandle forwards Partials/Finals/SetKeywords unchanged;
// only SendAudio and Close are overridden.
type keepAliveSession struct {
	SessionHandle
	silenceFrame []byte
	interval     time.Duration

	mu          sync.Mutex
	lastAudioAt time.Time

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// SendAudio forwards chunk to the wrapped session and resets the idle clock.
// Only real audio resets the clock; frames injected by run do not.
func (k *keepAliveSession) SendAudio(chunk []byte) error {
	k.mu.Lock()
	k.lastAudioAt = time.Now()
	k.mu.Unlock()
	return k.SessionHandle.SendAudio(chunk)
}

// Close stops the keep-alive timer before closing the wrapped session.
func (k *keepAliveSession) Close() error {
	k.stopOnce.Do(func() { close(k.done) })
	k.wg.Wait()
	return k.SessionHandle.Close()
}

// run fires once per interval; on each tick, if no real audio has arrived for
// at least interval, it injects one silence frame. Over a silent session of
// duration T this yields exactly floor(T/interval) injections.
func (k *keepAliveSession) run() {
	defer k.wg.Done()
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-k.done:
			return
		case <-ticker.C:
			k.mu.Lock()
			idle := time.Since(k.lastAudioAt) >= k.interval
			k.mu.Unlock()
			if idle {
				_ = k.SessionHandle.SendAudio(k.silenceFrame)
			}
		}
	}
}

// silenceFrameBytes returns the byte length of a silenceFrameDuration-long
// zero-valued 16-bit PCM buffer at the given sample rate and channel count.
func silenceFrameBytes(sampleRate, channels int) int {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	samples := sampleRate * channels * int(silenceFrameDuration.Milliseconds()) / 1000
	return samples * bytesPerSample
}
