//go:build !cgo

package vad

import "errors"

func newWebRTC(int) (Classifier, error) {
	return nil, errors.New("webrtc vad requires a cgo build; use the energy backend")
}
