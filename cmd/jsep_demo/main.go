// jsep_demo показывает согласование offer/answer между двумя сессиями jsep.
//
// Режимы:
//
//	loopback  обе сессии в одном процессе, описания передаются напрямую
//	serve     отвечающая сторона: WebSocket сигнализация и /metrics
//	dial      предлагающая сторона: подключается к serve и отправляет offer
package main

import (
	"context"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/dtls/v2/pkg/crypto/selfsign"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"

	"github.com/arzzra/jsep_engine/pkg/jsep"
	"github.com/arzzra/jsep_engine/pkg/jsep_sdp"
	"github.com/arzzra/jsep_engine/pkg/jsep_signaling"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mode := flag.String("mode", "loopback", "Режим: loopback, serve или dial")
	listen := flag.String("listen", "127.0.0.1:8443", "Адрес WebSocket сервера (serve)")
	wsURL := flag.String("url", "ws://127.0.0.1:8443/ws", "URL WebSocket сервера (dial)")
	policy := flag.String("bundle", "balanced", "Политика BUNDLE: balanced, max-compat, max-bundle")
	tracks := flag.String("tracks", "audio,video,application", "Локальные треки через запятую")
	showSdp := flag.Bool("sdp", false, "Печатать SDP")
	debug := flag.Bool("debug", false, "Отладочные логи")
	flag.Parse()

	if *debug {
		pterm.DefaultLogger.Level = pterm.LogLevelDebug
	}
	logger := slog.New(pterm.NewSlogHandler(&pterm.DefaultLogger))
	metrics := jsep.NewMetrics(jsep.DefaultMetricsConfig())

	bundlePolicy, err := parseBundlePolicy(*policy)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(2)
	}
	mediaTypes, err := parseTracks(*tracks)
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(2)
	}

	factory := func(name string, types []jsep_sdp.MediaType) (*jsep.Session, error) {
		return newSession(name, bundlePolicy, types, logger, metrics)
	}

	switch *mode {
	case "loopback":
		err = runLoopback(factory, mediaTypes, *showSdp)
	case "serve":
		err = runServe(ctx, factory, *listen, logger)
	case "dial":
		err = runDial(ctx, factory, mediaTypes, *wsURL, logger)
	default:
		err = fmt.Errorf("неизвестный режим %q", *mode)
	}
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

type sessionFactory func(name string, types []jsep_sdp.MediaType) (*jsep.Session, error)

func parseBundlePolicy(value string) (jsep.BundlePolicy, error) {
	for _, policy := range []jsep.BundlePolicy{jsep.BundlePolicyBalanced, jsep.BundlePolicyMaxCompat, jsep.BundlePolicyMaxBundle} {
		if policy.String() == value {
			return policy, nil
		}
	}
	return 0, fmt.Errorf("неизвестная политика BUNDLE %q", value)
}

func parseTracks(value string) ([]jsep_sdp.MediaType, error) {
	var types []jsep_sdp.MediaType
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		mediaType, err := jsep_sdp.ParseMediaType(field)
		if err != nil {
			return nil, err
		}
		types = append(types, mediaType)
	}
	return types, nil
}

// newSession создает сессию с отпечатком самоподписанного сертификата
func newSession(name string, policy jsep.BundlePolicy, types []jsep_sdp.MediaType,
	logger *slog.Logger, metrics *jsep.Metrics) (*jsep.Session, error) {

	config := jsep.DefaultConfig()
	config.Name = name
	config.BundlePolicy = policy
	config.Logger = logger
	config.Metrics = metrics

	session, err := jsep.NewSession(config)
	if err != nil {
		return nil, err
	}

	certificate, err := selfsign.GenerateSelfSigned()
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	parsed, err := x509.ParseCertificate(certificate.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	if err := session.AddDtlsFingerprintsFromCertificate(parsed, "sha-256"); err != nil {
		return nil, err
	}

	for i, mediaType := range types {
		track := jsep.NewTrack(mediaType, name, fmt.Sprintf("%s_%d", mediaType, i))
		if err := session.AddTrack(track); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func runLoopback(factory sessionFactory, types []jsep_sdp.MediaType, showSdp bool) error {
	if len(types) == 0 {
		return errors.New("loopback requires at least one track")
	}
	alice, err := factory("alice", types)
	if err != nil {
		return err
	}
	bob, err := factory("bob", types[:len(types)/2+1])
	if err != nil {
		return err
	}

	offer, err := alice.CreateOffer(jsep.OfferOptions{})
	if err != nil {
		return err
	}
	if err := alice.SetLocalDescription(jsep.SdpTypeOffer, offer); err != nil {
		return err
	}
	if err := bob.SetRemoteDescription(jsep.SdpTypeOffer, offer); err != nil {
		return err
	}
	answer, err := bob.CreateAnswer(jsep.AnswerOptions{})
	if err != nil {
		return err
	}
	if err := bob.SetLocalDescription(jsep.SdpTypeAnswer, answer); err != nil {
		return err
	}
	if err := alice.SetRemoteDescription(jsep.SdpTypeAnswer, answer); err != nil {
		return err
	}

	if showSdp {
		pterm.DefaultSection.Println("offer")
		pterm.Println(offer)
		pterm.DefaultSection.Println("answer")
		pterm.Println(answer)
	}
	printPairs(alice)
	printPairs(bob)
	return nil
}

func runServe(ctx context.Context, factory sessionFactory, listen string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", jsep_signaling.Handler(func(conn *websocket.Conn) {
		session, err := factory(fmt.Sprintf("answerer-%s", conn.RemoteAddr()), nil)
		if err != nil {
			logger.Error("failed to create session", slog.String("error", err.Error()))
			_ = conn.Close()
			return
		}
		peer := jsep_signaling.NewPeer(session, conn, logger)
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer session.Close()
			if err := peer.Run(ctx); err != nil {
				logger.Warn("signaling connection closed", slog.String("error", err.Error()))
			}
		}()
		go func() {
			for {
				select {
				case <-peer.Negotiated():
					printPairs(session)
				case <-done:
					return
				}
			}
		}()
	}))

	server := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	pterm.Info.Printfln("signaling on ws://%s/ws, metrics on http://%s/metrics", listen, listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runDial(ctx context.Context, factory sessionFactory, types []jsep_sdp.MediaType, url string, logger *slog.Logger) error {
	session, err := factory("offerer", types)
	if err != nil {
		return err
	}
	defer session.Close()

	conn, err := jsep_signaling.Connect(ctx, url)
	if err != nil {
		return err
	}
	peer := jsep_signaling.NewPeer(session, conn, logger)
	defer peer.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- peer.Run(ctx) }()

	if err := peer.SendOffer(jsep.OfferOptions{}); err != nil {
		return err
	}

	select {
	case <-peer.Negotiated():
		printPairs(session)
		return nil
	case err := <-runErr:
		return fmt.Errorf("signaling stopped before answer: %w", err)
	case <-time.After(10 * time.Second):
		return errors.New("no answer within 10s")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// printPairs печатает согласованные пары таблицей
func printPairs(session *jsep.Session) {
	data := pterm.TableData{{"level", "direction", "sending", "receiving", "transport", "bundle", "codecs", "rtp ext"}}
	for _, pair := range session.NegotiatedTrackPairs() {
		sending, receiving := "-", "-"
		if pair.Sending != nil {
			sending = pair.Sending.TrackID()
		}
		if pair.Receiving != nil {
			receiving = pair.Receiving.TrackID()
		}
		transport := "-"
		if pair.RtpTransport != nil {
			transport = pair.RtpTransport.ID
		}
		track := pair.Sending
		if track == nil {
			track = pair.Receiving
		}
		var details *jsep.NegotiatedDetails
		if track != nil {
			details = track.Negotiated()
		}
		bundle := "-"
		if pair.Bundled {
			bundle = fmt.Sprintf("%d", pair.BundleLevel)
		}
		data = append(data, []string{
			fmt.Sprintf("%d", pair.Level),
			pair.Direction.String(),
			sending,
			receiving,
			transport,
			bundle,
			codecNames(details),
			headerExtensions(details),
		})
	}

	pterm.DefaultSection.Println(session.Name())
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		pterm.Warning.Println(err)
	}
}

func codecNames(details *jsep.NegotiatedDetails) string {
	if details == nil {
		return "-"
	}
	var names []string
	for _, codec := range details.Codecs() {
		names = append(names, fmt.Sprintf("%s/%s", codec.Name, codec.PayloadType))
	}
	return strings.Join(names, " ")
}

// headerExtensions показывает профиль RTP заголовочных расширений и их id
func headerExtensions(details *jsep.NegotiatedDetails) string {
	if details == nil || len(details.Extmaps) == 0 {
		return "-"
	}
	ids := make([]string, 0, len(details.Extmaps))
	for _, extmap := range details.Extmaps {
		ids = append(ids, fmt.Sprintf("%d", extmap.ID))
	}
	return fmt.Sprintf("0x%04X [%s]", details.HeaderExtensionProfile(), strings.Join(ids, ","))
}
