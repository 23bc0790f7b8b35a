package sfu

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

// chanReader serves packets pushed on ch and io.EOF once ch is closed.
type chanReader struct {
	ch chan *rtp.Packet
}

func newChanReader() *chanReader { return &chanReader{ch: make(chan *rtp.Packet, 16)} }

func (r *chanReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-r.ch
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

type recordingWriter struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (w *recordingWriter) WriteRTP(p *rtp.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.seqs = append(w.seqs, p.SequenceNumber)
	return nil
}

func (w *recordingWriter) received() []uint16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint16(nil), w.seqs...)
}

func packet(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}}
}

var videoOfAlice = Key{Source: "alice-out", Kind: webrtc.RTPCodecTypeVideo}

func TestRelayManager_FansOutToSubscribers(t *testing.T) {
	req := require.New(t)
	m := NewRelayManager()
	bob, carol := &recordingWriter{}, &recordingWriter{}

	// Given two sinks attached before the source arrives
	m.AddSubscriber(videoOfAlice, "bob-sink", bob)
	m.AddSubscriber(videoOfAlice, "carol-sink", carol)
	req.Equal(2, m.Subscribers(videoOfAlice))

	// When the source starts producing
	src := newChanReader()
	m.Start(context.Background(), videoOfAlice, src)
	src.ch <- packet(1)
	src.ch <- packet(2)

	// Then every sink gets every packet in order
	for _, w := range []*recordingWriter{bob, carol} {
		req.Eventually(func() bool { return len(w.received()) == 2 }, time.Second, 5*time.Millisecond)
		req.Equal([]uint16{1, 2}, w.received())
	}
	close(src.ch)
}

func TestRelayManager_RemoveSubscriber(t *testing.T) {
	req := require.New(t)
	m := NewRelayManager()
	bob, carol := &recordingWriter{}, &recordingWriter{}
	m.AddSubscriber(videoOfAlice, "bob-sink", bob)
	m.AddSubscriber(videoOfAlice, "carol-sink", carol)
	src := newChanReader()
	m.Start(context.Background(), videoOfAlice, src)

	m.RemoveSubscriber("bob-sink")
	src.ch <- packet(7)

	req.Eventually(func() bool { return len(carol.received()) == 1 }, time.Second, 5*time.Millisecond)
	req.Empty(bob.received())
	req.Equal(1, m.Subscribers(videoOfAlice))
	close(src.ch)
}

func TestRelay_WriteErrorDropsOutTrack(t *testing.T) {
	req := require.New(t)
	m := NewRelayManager()
	broken := &recordingWriter{err: errors.New("closed pipe")}
	ok := &recordingWriter{}
	m.AddSubscriber(videoOfAlice, "broken", broken)
	m.AddSubscriber(videoOfAlice, "ok", ok)
	src := newChanReader()
	m.Start(context.Background(), videoOfAlice, src)

	src.ch <- packet(1)

	req.Eventually(func() bool { return m.Subscribers(videoOfAlice) == 1 }, time.Second, 5*time.Millisecond)
	req.Eventually(func() bool { return len(ok.received()) == 1 }, time.Second, 5*time.Millisecond)
	close(src.ch)
}

func TestRelayManager_StopSource(t *testing.T) {
	req := require.New(t)
	m := NewRelayManager()
	audioOfAlice := Key{Source: "alice-out", Kind: webrtc.RTPCodecTypeAudio}
	videoOfBob := Key{Source: "bob-out", Kind: webrtc.RTPCodecTypeVideo}
	m.AddSubscriber(videoOfAlice, "bob-sink", &recordingWriter{})
	m.AddSubscriber(audioOfAlice, "bob-sink", &recordingWriter{})
	m.AddSubscriber(videoOfBob, "alice-sink", &recordingWriter{})

	m.StopSource("alice-out")

	req.Equal(0, m.Subscribers(videoOfAlice))
	req.Equal(0, m.Subscribers(audioOfAlice))
	req.Equal(1, m.Subscribers(videoOfBob))

	m.Close()
	req.Equal(0, m.Subscribers(videoOfBob))
}

func TestRelay_RestartReplacesSource(t *testing.T) {
	req := require.New(t)
	m := NewRelayManager()
	w := &recordingWriter{}
	m.AddSubscriber(videoOfAlice, "bob-sink", w)

	first := newChanReader()
	m.Start(context.Background(), videoOfAlice, first)
	first.ch <- packet(1)
	req.Eventually(func() bool { return len(w.received()) == 1 }, time.Second, 5*time.Millisecond)

	// A renegotiated track takes over the same relay and keeps its sinks
	close(first.ch)
	second := newChanReader()
	m.Start(context.Background(), videoOfAlice, second)
	second.ch <- packet(2)

	req.Eventually(func() bool { return len(w.received()) == 2 }, time.Second, 5*time.Millisecond)
	req.Equal([]uint16{1, 2}, w.received())
	close(second.ch)
}
