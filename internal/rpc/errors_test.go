package rpc

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
	"testing"
)

func TestErrorTypeString(t *testing.T) {
	tests := []struct {
		et   ErrorType
		want string
	}{
		{ErrTypeNetwork, "Network Error"},
		{ErrTypeTimeout, "Timeout"},
		{ErrTypeServer, "Server Error"},
		{ErrTypeUnavailable, "Backend Unavailable"},
		{ErrorType(99), "ErrorType(99)"},
	}
	for _, tt := range tests {
		if got := tt.et.String(); got != tt.want {
			t.Errorf("ErrorType(%d).String() = %v, want %v", tt.et, got, tt.want)
		}
	}
}

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      ErrorType
		wantRetryable bool
	}{
		{"nil", nil, 0, false},
		{"timeout", os.ErrDeadlineExceeded, ErrTypeTimeout, true},
		{"dns", &net.DNSError{Name: "erp.invalid", Err: "no such host"}, ErrTypeDNS, false},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, ErrTypeConnectionRefused, true},
		{"host unreachable", &net.OpError{Op: "dial", Err: syscall.EHOSTUNREACH}, ErrTypeNetwork, true},
		{"wrapped in url.Error", &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}, ErrTypeConnectionRefused, true},
		{"generic", errors.New("boom"), ErrTypeNetwork, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyNetworkError(tt.err, "/r")
			if tt.err == nil {
				if got != nil {
					t.Errorf("ClassifyNetworkError(nil) = %v, want nil", got)
				}
				return
			}
			if got.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", got.Type, tt.wantType)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestNewServerErrorAuth(t *testing.T) {
	err := NewServerError("/r", 100, "Odoo Session Expired", &ServerErrorData{Name: "odoo.http.SessionExpiredException"})
	if !IsAuthError(err) {
		t.Errorf("IsAuthError() = false for session expiry")
	}
	if IsServerError(err) {
		t.Errorf("IsServerError() = true for session expiry")
	}
}

func TestErrorMessageUsesServerData(t *testing.T) {
	err := NewServerError("/stock_barcode/save_barcode_data", 200, "Odoo Server Error", &ServerErrorData{Message: "Lot is required"})
	if !strings.Contains(err.Error(), "Lot is required") {
		t.Errorf("Error() = %q, should contain server message", err.Error())
	}
}

func TestIsHelpersSeeThroughWrapping(t *testing.T) {
	base := NewHTTPError("/r", 503, "unavailable")
	wrapped := fmt.Errorf("refresh: %w", base)

	if !IsRetryable(wrapped) {
		t.Error("IsRetryable(wrapped 503) = false, want true")
	}
	if IsNetworkError(wrapped) {
		t.Error("IsNetworkError(wrapped 503) = true, want false")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("IsRetryable(plain) = true, want false")
	}
}

func TestCountsAsFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server rejection", NewServerError("/r", 200, "x", nil), false},
		{"client http", NewHTTPError("/r", 404, "x"), false},
		{"server http", NewHTTPError("/r", 502, "x"), true},
		{"network", ClassifyNetworkError(errors.New("reset"), "/r"), true},
		{"unknown", errors.New("x"), true},
	}
	for _, tt := range tests {
		if got := countsAsFailure(tt.err); got != tt.want {
			t.Errorf("%s: countsAsFailure() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestGetShortErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ClassifyNetworkError(os.ErrDeadlineExceeded, "/r"), "Server not responding (timeout)"},
		{NewHTTPError("/r", 500, "x"), "Server error (HTTP 500)"},
		{NewServerError("/r", 200, "Odoo Server Error", &ServerErrorData{Message: "Scan a lot first"}), "Scan a lot first"},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		if got := GetShortErrorMessage(tt.err); got != tt.want {
			t.Errorf("GetShortErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
