package model_test

import (
	"testing"

	"golang.org/x/oauth2"

	"github.com/guarzo/authpipe/common/model"
)

func TestCredentials_Complete(t *testing.T) {
	var nilPair *model.Credentials
	cases := []struct {
		name string
		pair *model.Credentials
		want bool
	}{
		{"nil", nilPair, false},
		{"access only", &model.Credentials{Access: "a"}, false},
		{"refresh only", &model.Credentials{Refresh: "r"}, false},
		{"both", &model.Credentials{Access: "a", Refresh: "r"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pair.Complete(); got != tc.want {
				t.Errorf("Complete() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFromToken_RotatedRefresh(t *testing.T) {
	got := model.FromToken(&oauth2.Token{AccessToken: "a", RefreshToken: "r2"}, "r1")
	if *got != (model.Credentials{Access: "a", Refresh: "r2"}) {
		t.Errorf("unexpected pair %+v", got)
	}
}

func TestFromToken_KeepsRefreshWhenNotRotated(t *testing.T) {
	got := model.FromToken(&oauth2.Token{AccessToken: "a2"}, "r1")
	if got.Access != "a2" || got.Refresh != "r1" {
		t.Errorf("unexpected pair %+v", got)
	}
	if model.FromToken(nil, "r1") != nil {
		t.Error("nil token should give nil pair")
	}
}
