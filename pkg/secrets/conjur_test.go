package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testConjurURL   = "http://conjur.test"
	testAuthnURL    = testConjurURL + "/authn/myorg/host%2Fcryoet-etl/authenticate"
	testVariableURL = testConjurURL + "/secrets/myorg/variable/cryoet%2Fdb"
	testWhoAmIURL   = testConjurURL + "/whoami"
	// slosilo v2 access token; the payload decodes to
	// {"sub":"host/cryoet-etl","iat":1700000000}
	testToken = `{"protected":"eyJhbGciOiJjb25qdXIub3JnL3Nsb3NpbG8vdjIiLCJraWQiOiJ0ZXN0In0=",` +
		`"payload":"eyJzdWIiOiJob3N0L2NyeW9ldC1ldGwiLCJpYXQiOjE3MDAwMDAwMDB9","signature":"c2lnbmF0dXJl"}`
)

// newMockedConjur routes the SDK's default transport through httpmock and
// answers authentication for the api key "api-key".
func newMockedConjur(t *testing.T, apiKey string) *ConjurStore {
	t.Helper()

	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	store, err := NewConjurStore(ConjurConfig{
		URL:     testConjurURL + "/",
		Account: "myorg",
		Login:   "host/cryoet-etl",
		APIKey:  apiKey,
	})
	require.NoError(t, err)

	httpmock.RegisterResponder(http.MethodPost, testAuthnURL,
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			if string(body) != "api-key" {
				return stringResponse(req, http.StatusUnauthorized, ""), nil
			}
			return stringResponse(req, http.StatusOK, testToken), nil
		})
	return store
}

func TestConjurStore_Get(t *testing.T) {
	t.Run("returns the stored bundle", func(t *testing.T) {
		store := newMockedConjur(t, "api-key")
		httpmock.RegisterResponder(http.MethodGet, testVariableURL,
			func(req *http.Request) (*http.Response, error) {
				assert.Contains(t, req.Header.Get("Authorization"), `Token token="`)
				return stringResponse(req, http.StatusOK,
					`{"POSTGRES_USER":"cryo","POSTGRES_PASSWORD":"s3cret","POSTGRES_DB":"cryoet"}`), nil
			})

		bundle, err := store.Get(context.Background(), "cryoet/db")
		require.NoError(t, err)
		assert.Equal(t, Bundle{Username: "cryo", Password: "s3cret", Database: "cryoet"}, bundle)
	})

	t.Run("variable without value is not found", func(t *testing.T) {
		store := newMockedConjur(t, "api-key")
		httpmock.RegisterResponder(http.MethodGet, testVariableURL,
			httpmock.NewStringResponder(http.StatusNotFound, `{"error":{"code":"not_found"}}`))

		_, err := store.Get(context.Background(), "cryoet/db")
		assert.ErrorIs(t, err, ErrSecretNotFound)
	})

	t.Run("rejected api key is unavailable", func(t *testing.T) {
		store := newMockedConjur(t, "wrong")

		_, err := store.Get(context.Background(), "cryoet/db")
		assert.ErrorIs(t, err, ErrSecretStoreUnavailable)
	})

	t.Run("network error is unavailable", func(t *testing.T) {
		store := newMockedConjur(t, "api-key")
		httpmock.RegisterResponder(http.MethodGet, testVariableURL,
			httpmock.NewErrorResponder(errors.New("i/o timeout")))

		_, err := store.Get(context.Background(), "cryoet/db")
		assert.ErrorIs(t, err, ErrSecretStoreUnavailable)
	})
}

func TestConjurStore_Put(t *testing.T) {
	bundle := Bundle{Username: "cryo", Password: "s3cret", Database: "cryoet"}

	t.Run("stores when the variable is empty", func(t *testing.T) {
		store := newMockedConjur(t, "api-key")
		httpmock.RegisterResponder(http.MethodGet, testVariableURL,
			httpmock.NewStringResponder(http.StatusNotFound, ""))

		var stored map[string]string
		httpmock.RegisterResponder(http.MethodPost, testVariableURL,
			func(req *http.Request) (*http.Response, error) {
				require.NoError(t, json.NewDecoder(req.Body).Decode(&stored))
				return stringResponse(req, http.StatusCreated, ""), nil
			})

		require.NoError(t, store.Put(context.Background(), "cryoet/db", bundle))
		assert.Equal(t, bundle.Map(), stored)
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		store := newMockedConjur(t, "api-key")
		httpmock.RegisterResponder(http.MethodGet, testVariableURL,
			httpmock.NewStringResponder(http.StatusOK,
				`{"POSTGRES_USER":"other","POSTGRES_PASSWORD":"x","POSTGRES_DB":"cryoet"}`))
		httpmock.RegisterResponder(http.MethodPost, testVariableURL,
			httpmock.NewStringResponder(http.StatusCreated, ""))

		err := store.Put(context.Background(), "cryoet/db", bundle)
		assert.ErrorIs(t, err, ErrSecretExists)
		assert.Zero(t, httpmock.GetCallCountInfo()["POST "+testVariableURL])
	})

	t.Run("undeclared variable", func(t *testing.T) {
		store := newMockedConjur(t, "api-key")
		httpmock.RegisterResponder(http.MethodGet, testVariableURL,
			httpmock.NewStringResponder(http.StatusNotFound, ""))
		httpmock.RegisterResponder(http.MethodPost, testVariableURL,
			httpmock.NewStringResponder(http.StatusNotFound, ""))

		err := store.Put(context.Background(), "cryoet/db", bundle)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not declared")
	})
}

func TestConjurStore_Health(t *testing.T) {
	t.Run("authenticated host is healthy", func(t *testing.T) {
		store := newMockedConjur(t, "api-key")
		httpmock.RegisterResponder(http.MethodGet, testWhoAmIURL,
			httpmock.NewStringResponder(http.StatusOK, `{"account":"myorg","username":"host/cryoet-etl"}`))

		assert.NoError(t, store.Health(context.Background()))
	})

	t.Run("server error is unavailable", func(t *testing.T) {
		store := newMockedConjur(t, "api-key")
		httpmock.RegisterResponder(http.MethodGet, testWhoAmIURL,
			httpmock.NewStringResponder(http.StatusBadGateway, ""))

		assert.ErrorIs(t, store.Health(context.Background()), ErrSecretStoreUnavailable)
	})
}

func TestNewConjurStore_RequiresCredentials(t *testing.T) {
	_, err := NewConjurStore(ConjurConfig{URL: testConjurURL, Account: "myorg", Login: "host/cryoet-etl"})
	assert.Error(t, err)
}

// stringResponse builds a mock response linked to its request, as net/http
// does; the conjur SDK logs resp.Request on every response.
func stringResponse(req *http.Request, status int, body string) *http.Response {
	resp := httpmock.NewStringResponse(status, body)
	resp.Request = req
	return resp
}
