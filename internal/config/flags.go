package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// NetAddress holds structured network address data for host and port.
// It implements the flag.Value interface.
type NetAddress struct {
	Host string
	Port int
}

// ParseFlags parses the client configuration flags from args (normally
// os.Args[1:]).
//
// Flags:
//
//	-a remote API address (e.g. http://localhost:8080)
//	-d SQLite database DSN
//	-c/-config json file path with configs
//	-tenant session tenant ID
//	-token remote API bearer token
//	-request-timeout remote request timeout (e.g. "15s")
//	-sync-interval background drain interval (e.g. "30s")
//	-max-retries failed attempts before an entry is abandoned
//	-metrics-address prometheus listen address in format [host]:[port]
//	-log-file rotating log file path
func ParseFlags(args []string) (*StructuredConfig, error) {
	var (
		metricsAddress NetAddress
		adapterAddress string
		databaseDSN    string
		jsonConfigPath string
		tenantID       string
		token          string
		logFile        string
		requestTimeout time.Duration
		syncInterval   time.Duration
		maxRetries     int
	)

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&adapterAddress, "a", "", "Remote API address")
	fs.StringVar(&databaseDSN, "d", "", "SQLite database DSN")
	fs.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	fs.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")
	fs.StringVar(&tenantID, "tenant", "", "Session tenant ID")
	fs.StringVar(&token, "token", "", "Remote API bearer token")
	fs.StringVar(&logFile, "log-file", "", "Rotating log file path")
	fs.DurationVar(&requestTimeout, "request-timeout", 0, "Remote request timeout (e.g., 15s)")
	fs.DurationVar(&syncInterval, "sync-interval", 0, "Background drain interval (e.g., 30s)")
	fs.IntVar(&maxRetries, "max-retries", 0, "Failed drain attempts before an entry is abandoned")
	fs.Var(&metricsAddress, "metrics-address", "Prometheus listen address host:port")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("error parsing flags: %w", err)
	}

	return &StructuredConfig{
		App: App{
			TenantID:       tenantID,
			MetricsAddress: metricsAddress.String(),
			LogFile:        logFile,
		},
		Storage: Storage{
			DB: DB{DSN: databaseDSN},
		},
		Adapter: Adapter{
			HTTPAddress:    adapterAddress,
			RequestTimeout: requestTimeout,
			Token:          token,
		},
		Workers: Workers{
			SyncInterval: syncInterval,
			MaxRetries:   maxRetries,
		},
		JSONFilePath: jsonConfigPath,
	}, nil
}

// String returns a canonical host:port string for a NetAddress, or an empty
// string if neither Host nor Port are set.
func (a *NetAddress) String() string {
	if a.Host == "" && a.Port == 0 {
		return ""
	}

	return a.Host + ":" + strconv.Itoa(a.Port)
}

// Set parses the input string of form host:port and populates the NetAddress.
// An empty host means all interfaces; any other host except "localhost" must
// be an IP address.
func (a *NetAddress) Set(s string) error {
	hostAndPort := strings.Split(s, ":")
	if len(hostAndPort) != 2 {
		return errors.New("need address in a form `host:port`")
	}

	host := hostAndPort[0]
	port, err := strconv.Atoi(hostAndPort[1])
	if err != nil {
		return err
	}

	if port < 1 || port > 65535 {
		return errors.New("port number must be in range 1-65535")
	}

	if host != "" && host != "localhost" && net.ParseIP(host) == nil {
		return errors.New("incorrect IP-address provided")
	}

	a.Host = host
	a.Port = port
	return nil
}
