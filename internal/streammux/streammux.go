// Streammux provides an abstraction over a byte-stream port with the ability
// for multiple clients to subscribe to raw fragments from the port and send
// commands to a single attached device.
package streammux

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to stream port")

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// ReadBufferSize is the scratch buffer used for each port read. BLE
// notification payloads top out well below this, so a single read never
// splits a delivery further than the transport already did.
const ReadBufferSize = 512

// readPollTimeout is applied to ports that support read timeouts. A quiet
// device then produces an empty read once per interval instead of holding
// the read goroutine in a blocking Read.
const readPollTimeout = time.Second

// Fragment is one delivery from the device: the raw bytes of a single port
// read and the wall-clock instant the read completed. Fragment boundaries
// carry no meaning; a fragment may contain partial records.
type Fragment struct {
	Data       []byte
	ReceivedAt time.Time
}

// FragmentHandler consumes fragments inline on the monitor goroutine. The
// handler owns the loss-free path: it runs to completion before the next
// fragment is read, and a returned error stops the monitor.
type FragmentHandler func(Fragment) error

// StreamMux is a generic stream port multiplexer that allows multiple clients
// to observe fragments from a single port.
type StreamMux[T StreamPorter] struct {
	port         T
	subscribers  map[string]chan Fragment
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	handler      FragmentHandler
	handlerMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// StreamMuxInterface defines the interface for the StreamMux type.
type StreamMuxInterface interface {
	// Subscribe creates a new channel for receiving fragments from the
	// port. The channel ID is used to identify the unique channel when
	// unsubscribing. Subscriber channels are best-effort taps: a stalled
	// subscriber misses fragments rather than stalling the monitor.
	Subscribe() (string, chan Fragment)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SetHandler installs the inline fragment handler. Unlike subscriber
	// channels the handler never misses a fragment.
	SetHandler(FragmentHandler)
	// SendCommand writes the provided command to the port.
	SendCommand(string) error
	// Monitor reads fragments from the port, passes each to the handler,
	// and fans them out to subscriber channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the port.
	Close() error

	Initialize() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewStreamMux creates a StreamMux instance backed by the given port.
func NewStreamMux[T StreamPorter](port T) *StreamMux[T] {
	return &StreamMux[T]{
		port:         port,
		subscribers:  make(map[string]chan Fragment),
		subscriberMu: sync.Mutex{},
		commandMu:    sync.Mutex{},
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *StreamMux[T]) Subscribe() (string, chan Fragment) {
	id := randomID()
	ch := make(chan Fragment)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the stream mux.
func (s *StreamMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SetHandler installs the inline fragment handler. Passing nil removes the
// current handler.
func (s *StreamMux[T]) SetHandler(h FragmentHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handler = h
}

// Initialize identifies the device and starts the sample stream. The WHORU
// reply is indicated on the device's control side and never enters the data
// stream, so sending it before START leaves the byte stream aligned.
func (s *StreamMux[T]) Initialize() error {
	if err := s.SendCommand(CommandWhoAmI); err != nil {
		return fmt.Errorf("failed to identify device: %w", err)
	}

	if err := s.SendCommand(CommandStart); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	return nil
}

// SendCommand sends a command to the stream port.
func (s *StreamMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n" // ensure command ends with a newline
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads the port and distributes fragments until the context is
// cancelled, the port reaches EOF, or the handler returns an error.
func (s *StreamMux[T]) Monitor(ctx context.Context) error {
	fragChan := make(chan Fragment)
	readErrChan := make(chan error, 1)

	// start a goroutine to read from the port & send any fragments to
	// fragChan, and any errors to readErrChan.
	//
	// the blocking port.Read will not interfere with our outer loop
	// awaiting fragments & context cancellation. ReceivedAt is stamped
	// here, immediately after the read returns, so queueing in the outer
	// loop never skews sample timestamps.
	go func() {
		defer close(fragChan)
		if tp, ok := any(s.port).(TimeoutStreamPorter); ok {
			// best effort; a port that rejects the timeout still works,
			// it just blocks in Read until data or Close
			_ = tp.SetReadTimeout(readPollTimeout)
		}
		buf := make([]byte, ReadBufferSize)
		for {
			n, err := s.port.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case fragChan <- Fragment{Data: data, ReceivedAt: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					select {
					case readErrChan <- err:
					case <-ctx.Done():
					}
				}
				return
			}
			if n == 0 {
				// timed-out or empty read; check for cancellation before
				// going back into Read
				select {
				case <-ctx.Done():
					return
				default:
				}
			}
		}
	}()

	for {
		select {
		// check if the context is done
		// and exit the loop if so
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			return err

		case frag, ok := <-fragChan:
			// if the channel is closed, we're done reading from the port
			if !ok {
				return nil
			}
			// Check if we're closing
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			// the handler runs inline so the recording path never
			// misses a fragment
			s.handlerMu.Lock()
			handler := s.handler
			s.handlerMu.Unlock()
			if handler != nil {
				if err := handler(frag); err != nil {
					return fmt.Errorf("fragment handler: %w", err)
				}
			}

			// otherwise take a lock on the subscriber map
			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- frag:
				default:
					// if the channel is full/blocking skip so as not to block the outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *StreamMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *StreamMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Basic command / live tail monitor interface using the below two API endpoints.
	debug.HandleFunc("send-command", "send a command to the stream port", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	// API endpoint to write command to the stream port
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to stream port", command))
	})
	// API endpoint to issue Server-Side Events (SSE) in response to fragments
	// coming from the port. Fragments are hex encoded since the stream is
	// binary.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case frag, ok := <-c:
				if !ok {
					// Channel closed, exit gracefully
					return
				}
				_, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", hex.EncodeToString(frag.Data))))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		// serve tail.js from adminTemplateFS
		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
