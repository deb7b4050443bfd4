package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// pairingStarted counts pairing attempts created via StartPairing.
	pairingStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairing_requests_total",
		Help: "Total number of pairing attempts started.",
	})

	// otpVerifications counts OTP verification outcomes by result
	// (verified, mismatch, expired, not_found).
	otpVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "Total number of OTP verification attempts by result.",
		},
		[]string{"result"},
	)

	// linksCompleted counts requests that reached the linked state (OTP
	// verified and protocol ready reconciled).
	linksCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairing_links_total",
		Help: "Total number of completed device links.",
	})
)

func init() {
	prometheus.MustRegister(pairingStarted, otpVerifications, linksCompleted)
}
