package logger

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"

	"example.com/devserve/internal/config"
)

// LogFields carries structured context for a log entry.
type LogFields map[string]interface{}

// parsedProxiesContainer holds pre-parsed trusted proxy IP addresses and CIDR blocks.
type parsedProxiesContainer struct {
	cidrs []*net.IPNet
	ips   []net.IP
}

// AccessLogger writes one record per completed request.
type AccessLogger struct {
	logger        zerolog.Logger
	realIPHeader  string
	parsedProxies parsedProxiesContainer
}

// Logger is the server-wide logger. Diagnostic messages go to the error log,
// per-request records go to the access log.
type Logger struct {
	errorLog  zerolog.Logger
	accessLog *AccessLogger
	closers   []io.Closer
}

// NewLogger creates and configures a new Logger instance.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	l := &Logger{}

	errorTarget := "stderr"
	errorFormat := "json"
	var errorRotation *config.RotationConfig
	if cfg.ErrorLog != nil {
		if cfg.ErrorLog.Target != nil {
			errorTarget = *cfg.ErrorLog.Target
		}
		if cfg.ErrorLog.Format != "" {
			errorFormat = cfg.ErrorLog.Format
		}
		errorRotation = cfg.ErrorLog.Rotation
	}
	errorOut, err := l.openTarget(errorTarget, errorRotation)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log target %s: %w", errorTarget, err)
	}
	l.errorLog = newZerolog(errorOut, errorFormat).Level(toZerologLevel(cfg.LogLevel))

	if cfg.AccessLog != nil && (cfg.AccessLog.Enabled == nil || *cfg.AccessLog.Enabled) {
		target := "stdout"
		if cfg.AccessLog.Target != nil {
			target = *cfg.AccessLog.Target
		}
		parsedProxies, err := preParseTrustedProxies(cfg.AccessLog.TrustedProxies)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to parse trusted proxies for access log: %w", err)
		}
		accessOut, err := l.openTarget(target, cfg.AccessLog.Rotation)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to open access log target %s: %w", target, err)
		}
		realIPHeader := ""
		if cfg.AccessLog.RealIPHeader != nil {
			realIPHeader = *cfg.AccessLog.RealIPHeader
		}
		l.accessLog = &AccessLogger{
			logger:        newZerolog(accessOut, cfg.AccessLog.Format),
			realIPHeader:  realIPHeader,
			parsedProxies: parsedProxies,
		}
	}

	return l, nil
}

// NewDiscardLogger returns a Logger that drops everything.
func NewDiscardLogger() *Logger {
	return &Logger{errorLog: zerolog.Nop()}
}

// NewTestLogger returns a Logger that writes JSON error and access records
// at debug level to w.
func NewTestLogger(w io.Writer) *Logger {
	return &Logger{
		errorLog:  zerolog.New(w).With().Timestamp().Logger().Level(zerolog.DebugLevel),
		accessLog: &AccessLogger{logger: zerolog.New(w).With().Timestamp().Logger()},
	}
}

func (l *Logger) openTarget(target string, rotation *config.RotationConfig) (io.Writer, error) {
	switch target {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if !config.IsFilePath(target) {
		return nil, fmt.Errorf("invalid log target: %s", target)
	}
	// Open once up front so permission problems surface at startup rather
	// than on the first write.
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	f.Close()

	lj := &lumberjack.Logger{Filename: target}
	if rotation != nil {
		lj.MaxSize = rotation.MaxSizeMB
		lj.MaxBackups = rotation.MaxBackups
		lj.MaxAge = rotation.MaxAgeDays
		lj.Compress = rotation.Compress
	}
	l.closers = append(l.closers, lj)
	return lj, nil
}

func newZerolog(w io.Writer, format string) zerolog.Logger {
	if format == "text" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func toZerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// preParseTrustedProxies converts string representations of IPs and CIDRs
// into net.IP and *net.IPNet objects for efficient checking.
func preParseTrustedProxies(proxyStrings []string) (parsedProxiesContainer, error) {
	var container parsedProxiesContainer
	for _, pStr := range proxyStrings {
		pStr = strings.TrimSpace(pStr)
		if pStr == "" {
			continue
		}
		if strings.Contains(pStr, "/") {
			_, ipNet, err := net.ParseCIDR(pStr)
			if err != nil {
				return parsedProxiesContainer{}, fmt.Errorf("invalid CIDR string in trusted_proxies '%s': %w", pStr, err)
			}
			container.cidrs = append(container.cidrs, ipNet)
			continue
		}
		ip := net.ParseIP(pStr)
		if ip == nil {
			return parsedProxiesContainer{}, fmt.Errorf("invalid IP string in trusted_proxies '%s'", pStr)
		}
		container.ips = append(container.ips, ip)
	}
	return container, nil
}

func isIPTrusted(ip net.IP, trustedProxies parsedProxiesContainer) bool {
	if ip == nil {
		return false
	}
	for _, trustedCIDR := range trustedProxies.cidrs {
		if trustedCIDR.Contains(ip) {
			return true
		}
	}
	for _, trustedIP := range trustedProxies.ips {
		if trustedIP.Equal(ip) {
			return true
		}
	}
	return false
}

// getRealClientIP determines the client address. The header named by
// realIPHeaderName is walked right to left and the first address that is not
// a trusted proxy wins. A malformed header falls back to the direct peer.
func getRealClientIP(remoteAddr string, headers http.Header, realIPHeaderName string, trustedProxies parsedProxiesContainer) string {
	directPeer := remoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		directPeer = host
	} else if ip := net.ParseIP(remoteAddr); ip != nil {
		directPeer = ip.String()
	}

	if realIPHeaderName == "" {
		return directPeer
	}
	headerValue := headers.Get(realIPHeaderName)
	if headerValue == "" {
		return directPeer
	}
	// Only believe the header when it was set by a proxy we trust.
	if !isIPTrusted(net.ParseIP(directPeer), trustedProxies) {
		return directPeer
	}

	ipsInHeader := strings.Split(headerValue, ",")
	for i := len(ipsInHeader) - 1; i >= 0; i-- {
		ipStr := strings.TrimSpace(ipsInHeader[i])
		if ipStr == "" {
			continue
		}
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return directPeer
		}
		if !isIPTrusted(ip, trustedProxies) {
			return ipStr
		}
	}
	return directPeer
}

// LogAccess writes an access log entry.
func (al *AccessLogger) LogAccess(req *http.Request, status int, responseBytes int64, duration time.Duration) {
	if al == nil {
		return
	}

	_, clientPort, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		clientPort = "0"
	}

	event := al.logger.Log().
		Str("remote_addr", getRealClientIP(req.RemoteAddr, req.Header, al.realIPHeader, al.parsedProxies)).
		Str("remote_port", clientPort).
		Str("protocol", req.Proto).
		Str("method", req.Method).
		Str("uri", req.RequestURI).
		Int("status", status).
		Int64("resp_bytes", responseBytes).
		Str("resp_size", humanize.Bytes(uint64(responseBytes))).
		Int64("duration_ms", duration.Milliseconds())
	if ua := req.UserAgent(); ua != "" {
		event = event.Str("user_agent", ua)
	}
	if ref := req.Referer(); ref != "" {
		event = event.Str("referer", ref)
	}
	event.Msg("access")
}

func (l *Logger) log(event *zerolog.Event, msg string, fields []LogFields) {
	for _, f := range fields {
		for k, v := range f {
			event = addField(event, k, v)
		}
	}
	event.Msg(msg)
}

// Debug logs a message at debug level.
func (l *Logger) Debug(msg string, fields ...LogFields) {
	l.log(l.errorLog.Debug(), msg, fields)
}

// Info logs a message at info level.
func (l *Logger) Info(msg string, fields ...LogFields) {
	l.log(l.errorLog.Info(), msg, fields)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(msg string, fields ...LogFields) {
	l.log(l.errorLog.Warn(), msg, fields)
}

// Error logs a message at error level.
func (l *Logger) Error(msg string, fields ...LogFields) {
	l.log(l.errorLog.Error(), msg, fields)
}

// Access records a completed request. It is a no-op when access logging is
// disabled.
func (l *Logger) Access(req *http.Request, status int, responseBytes int64, duration time.Duration) {
	if l.accessLog != nil {
		l.accessLog.LogAccess(req, status, responseBytes, duration)
	}
}

// WithComponent returns a logger whose error log entries carry a component field.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		errorLog:  l.errorLog.With().Str("component", component).Logger(),
		accessLog: l.accessLog,
		closers:   l.closers,
	}
}

// CloseLogFiles closes any file-backed log targets.
func (l *Logger) CloseLogFiles() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}

// ReopenLogFiles rotates file-backed targets, for use after external log
// rotation (e.g. on SIGHUP).
func (l *Logger) ReopenLogFiles() error {
	for _, c := range l.closers {
		if lj, ok := c.(*lumberjack.Logger); ok {
			if err := lj.Rotate(); err != nil {
				return fmt.Errorf("failed to rotate log file %s: %w", lj.Filename, err)
			}
		}
	}
	return nil
}

// addField adds a field to the log event based on its type.
func addField(event *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return event.Str(key, v)
	case int:
		return event.Int(key, v)
	case int64:
		return event.Int64(key, v)
	case uint32:
		return event.Uint32(key, v)
	case float64:
		return event.Float64(key, v)
	case bool:
		return event.Bool(key, v)
	case time.Time:
		return event.Time(key, v)
	case time.Duration:
		return event.Dur(key, v)
	case []string:
		return event.Strs(key, v)
	case error:
		return event.AnErr(key, v)
	default:
		return event.Interface(key, v)
	}
}
