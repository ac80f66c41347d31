package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-errors/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ehn-dcc-development/ehc-verify/common"
	"github.com/ehn-dcc-development/ehc-verify/trustlist"
	"github.com/ehn-dcc-development/ehc-verify/verifier"
)

type Configuration struct {
	ListenAddress string
	ListenPort    string
}

type server struct {
	config   *Configuration
	verifier *verifier.Verifier
	logger   *zap.Logger

	registry           *prometheus.Registry
	verificationsTotal *prometheus.CounterVec
}

type verificationRequest struct {
	Credential string `json:"credential"`
}

type verificationResponse struct {
	ValidSignature     bool   `json:"validSignature"`
	CertificateExpired bool   `json:"certificateExpired"`
	VerificationError  string `json:"verificationError,omitempty"`

	KID                string `json:"kid,omitempty"`
	CertificateIssuer  string `json:"certificateIssuer,omitempty"`
	CertificateSubject string `json:"certificateSubject,omitempty"`

	Claims *common.DecodedClaims `json:"claims,omitempty"`
}

func Run(config *Configuration, store *trustlist.Store, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := newServer(config, store, logger)

	addr := fmt.Sprintf("%s:%s", config.ListenAddress, config.ListenPort)
	logger.Info("Starting verification server", zap.String("addr", addr))

	err := http.ListenAndServe(addr, s.buildHandler())
	if err != nil {
		return errors.WrapPrefix(err, "Could not start listening", 0)
	}

	return nil
}

func newServer(config *Configuration, store *trustlist.Store, logger *zap.Logger) *server {
	registry := prometheus.NewRegistry()
	verificationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ehc_verifications_total",
		Help: "Number of credential verifications by result",
	}, []string{"result"})
	registry.MustRegister(verificationsTotal)

	return &server{
		config:   config,
		verifier: verifier.New(store),
		logger:   logger,

		registry:           registry,
		verificationsTotal: verificationsTotal,
	}
}

func (s *server) buildHandler() http.Handler {
	r := chi.NewRouter()
	r.Post("/verify_signature", s.handleVerifySignature)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

func (s *server) handleVerifySignature(w http.ResponseWriter, r *http.Request) {
	req := &verificationRequest{}
	err := json.NewDecoder(r.Body).Decode(req)
	if err != nil {
		s.writeError(w, errors.WrapPrefix(err, "Could not JSON unmarshal verification request", 0))
		return
	}

	response := s.verify([]byte(req.Credential))

	responseJson, err := json.Marshal(response)
	if err != nil {
		s.writeError(w, errors.WrapPrefix(err, "Could not JSON marshal verification response", 0))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(responseJson)
}

// verify decodes and verifies a single credential. Claim decoding proceeds
// even when verification fails, so the response can always carry whatever
// could be read.
func (s *server) verify(proofPrefixed []byte) *verificationResponse {
	now := time.Now()
	response := &verificationResponse{}

	proofCbor, err := common.DecodeQR(proofPrefixed)
	if err != nil {
		response.VerificationError = err.Error()
		s.verificationsTotal.WithLabelValues("undecodable").Inc()
		return response
	}

	cwt, err := common.UnmarshalCWT(proofCbor)
	if err != nil {
		response.VerificationError = err.Error()
		s.verificationsTotal.WithLabelValues("undecodable").Inc()
		return response
	}

	claims, err := common.ReadClaims(cwt.Payload, now)
	if err != nil {
		s.logger.Warn("Could not decode credential claims", zap.Error(err))
	} else {
		response.Claims = claims
	}

	result, err := s.verifier.Verify(cwt, now)
	if err != nil {
		response.VerificationError = err.Error()
		s.verificationsTotal.WithLabelValues("unverifiable").Inc()
		return response
	}

	response.ValidSignature = result.SignatureValid
	response.CertificateExpired = result.CertificateExpired
	response.KID = result.Entry.KIDBase64()
	response.CertificateIssuer = result.Entry.Certificate.Issuer.String()
	response.CertificateSubject = result.Entry.Certificate.Subject.String()

	if result.Valid {
		s.verificationsTotal.WithLabelValues("valid").Inc()
	} else {
		s.verificationsTotal.WithLabelValues("invalid").Inc()
	}

	return response
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	s.logger.Error("Request failed", zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
