package server

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/salvo/internal/core/observability/log"
)

// ALPN is the application protocol negotiated by the QUIC command listener.
const ALPN = "salvo-fc"

const (
	quicIdleTimeout = 30 * time.Second
	quicKeepAlive   = 15 * time.Second
	quicMaxStreams  = 100
)

// GenerateSelfSignedTLS returns a loopback-only certificate for development
// and tests.
func GenerateSelfSignedTLS() (*tls.Config, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Salvo Fire Control"},
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{certDER},
			PrivateKey:  privateKey,
		}},
		NextProtos: []string{ALPN},
		MinVersion: tls.VersionTLS13,
	}, nil
}

// QUICListener serves newline-delimited JSON commands. Each client stream is
// an independent request/reply channel.
type QUICListener struct {
	svc      *Service
	auth     *TokenAuth
	logger   log.Log
	listener *quic.Listener

	wg sync.WaitGroup
}

// ListenQUIC binds addr. A nil tlsConf gets a self-signed certificate.
func ListenQUIC(addr string, tlsConf *tls.Config, svc *Service, auth *TokenAuth, logger log.Log) (*QUICListener, error) {
	if tlsConf == nil {
		var err error
		if tlsConf, err = GenerateSelfSignedTLS(); err != nil {
			return nil, errors.Wrap(err, "failed to create TLS config")
		}
	}

	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{
		MaxIdleTimeout:     quicIdleTimeout,
		KeepAlivePeriod:    quicKeepAlive,
		MaxIncomingStreams: quicMaxStreams,
	})
	if err != nil {
		return nil, errors.Wrap(ErrListenerFailed, err.Error())
	}

	return &QUICListener{
		svc:      svc,
		auth:     auth,
		logger:   logger.With(log.String("component", "quic")),
		listener: ln,
	}, nil
}

func (l *QUICListener) Addr() net.Addr { return l.listener.Addr() }

// Serve accepts connections until ctx is done or the listener is closed.
func (l *QUICListener) Serve(ctx context.Context) error {
	l.logger.Info("QUIC listener started", log.String("address", l.Addr().String()))
	defer l.wg.Wait()

	for {
		conn, err := l.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return errors.Wrap(err, "accept")
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConnection(ctx, conn)
		}()
	}
}

func (l *QUICListener) Close() error {
	return l.listener.Close()
}

func (l *QUICListener) handleConnection(ctx context.Context, conn *quic.Conn) {
	logger := l.logger.With(
		log.String("client_id", uuid.NewString()),
		log.String("remote_addr", conn.RemoteAddr().String()),
	)
	logger.Info("QUIC client connected")

	// Closing the connection unblocks stream readers, so it must come before
	// waiting on them.
	var streams sync.WaitGroup
	defer func() {
		_ = conn.CloseWithError(quic.ApplicationErrorCode(0), "")
		streams.Wait()
		logger.Info("QUIC client disconnected")
	}()

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		streams.Add(1)
		go func() {
			defer streams.Done()
			l.handleStream(stream, logger)
		}()
	}
}

func (l *QUICListener) handleStream(stream *quic.Stream, logger log.Log) {
	defer func() { _ = stream.Close() }()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameBytes)
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)
	enc := json.NewEncoder(buf)

	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		buf.Reset()
		if err := enc.Encode(l.handleLine(scanner.Bytes())); err != nil {
			logger.Warn("Reply encode failed", log.Error(err))
			return
		}
		if _, err := stream.Write(buf.Bytes()); err != nil {
			logger.Warn("Reply write failed", log.Error(err))
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("Stream read ended", log.Error(err))
	}
}

func (l *QUICListener) handleLine(raw []byte) Reply {
	cmd, err := decodeCommand(raw)
	if err != nil {
		return Reply{Error: err.Error()}
	}
	if err = l.auth.Check(cmd.Token); err != nil {
		return Reply{ID: cmd.ID, Action: cmd.Action, Error: err.Error()}
	}
	return l.svc.Dispatch(cmd)
}
