package http

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/omniagent/internal/gatewayerr"
	"github.com/MrWong99/omniagent/pkg/provider/stt"
)

const (
	recognizeChunkSize  = 3200 // 100ms at 16kHz/16-bit mono
	recognizeMaxBody    = 20 << 20
	recognizeWaitBudget = 10 * time.Second
)

type recognizeResponse struct {
	Text string `json:"text"`
}

// handleRecognize is the one-shot POST /api/v1/stt/recognize endpoint: the
// raw PCM request body is fed through a transcription session and every
// final transcript is concatenated into a single response.
func (a *API) handleRecognize(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDOf(r)

	sampleRate := 16000
	if raw := r.Header.Get("X-Sample-Rate"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			sampleRate = n
		}
	}

	audio, err := io.ReadAll(io.LimitReader(r.Body, recognizeMaxBody+1))
	if err != nil {
		writeError(w, traceID, gatewayerr.NewInvalidParam("failed to read request body", err))
		return
	}
	if len(audio) > recognizeMaxBody {
		writeError(w, traceID, gatewayerr.NewInvalidParam("audio payload too large", nil))
		return
	}

	text, err := a.transcribeOnce(r.Context(), audio, sampleRate)
	if err != nil {
		writeError(w, traceID, err)
		return
	}
	writeJSON(w, http.StatusOK, recognizeResponse{Text: text})
}

// transcribeOnce drives a complete STT session to produce a single
// transcript for a fixed buffer of audio, chunking it the way the
// orchestrator's audio perception path does.
func (a *API) transcribeOnce(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	session, err := a.STT.StartStream(ctx, stt.StreamConfig{SampleRate: sampleRate, Channels: 1})
	if err != nil {
		return "", gatewayerr.NewSTTError(err)
	}
	defer session.Close()

	for i := 0; i < len(audio); i += recognizeChunkSize {
		end := i + recognizeChunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := session.SendAudio(audio[i:end]); err != nil {
			return "", gatewayerr.NewSTTError(err)
		}
	}
	if err := session.Close(); err != nil {
		return "", gatewayerr.NewSTTError(err)
	}

	deadline := time.After(recognizeWaitBudget)
	var text strings.Builder
	for {
		select {
		case tr, ok := <-session.Finals():
			if !ok {
				return strings.TrimSpace(text.String()), nil
			}
			if text.Len() > 0 {
				text.WriteString(" ")
			}
			text.WriteString(tr.Text)
		case <-deadline:
			return strings.TrimSpace(text.String()), nil
		case <-ctx.Done():
			return "", gatewayerr.NewTimeout("speech recognition", ctx.Err())
		}
	}
}
