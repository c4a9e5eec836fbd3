package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cucumber/godog"

	"github.com/cryoetdb/cryoetdb/pkg/bootstrap"
	"github.com/cryoetdb/cryoetdb/pkg/dataset"
	pipelinedb "github.com/cryoetdb/cryoetdb/pkg/db"
	"github.com/cryoetdb/cryoetdb/pkg/ingest"
	"github.com/cryoetdb/cryoetdb/pkg/logging"
	"github.com/cryoetdb/cryoetdb/pkg/query"
	"github.com/cryoetdb/cryoetdb/pkg/secrets"
	"github.com/cryoetdb/cryoetdb/pkg/server"
	"github.com/cryoetdb/cryoetdb/pkg/server/endpoints"
)

// StepsContext holds state shared between step definitions
type StepsContext struct {
	tc      *TestContext
	dataDir string
	env     map[string]string

	lastResult  bootstrap.Result
	lastOutcome bootstrap.Outcome
	lastErr     error
	lastStats   dataset.Stats
	rich        []query.RichTomogram
	removed     int64

	response     *http.Response
	responseBody []byte
}

// NewStepsContext creates a new steps context. dataDir receives the label
// table and volumes of the scenario.
func NewStepsContext(tc *TestContext, dataDir string) *StepsContext {
	return &StepsContext{tc: tc, dataDir: dataDir, env: map[string]string{}}
}

// RegisterSteps registers all step definitions
func (s *StepsContext) RegisterSteps(sc *godog.ScenarioContext) {
	// Background steps
	sc.Step(`^an empty secret store$`, s.anEmptySecretStore)
	sc.Step(`^an empty database$`, s.anEmptyDatabase)
	sc.Step(`^the bootstrap environment:$`, s.theBootstrapEnvironment)
	sc.Step(`^the deployment is bootstrapped$`, s.theDeploymentIsBootstrapped)

	// Bootstrap steps
	sc.Step(`^I run the pipeline$`, s.iRunThePipeline)
	sc.Step(`^I bootstrap$`, s.iBootstrap)
	sc.Step(`^the credentials are provisioned$`, s.theCredentialsAreProvisioned)
	sc.Step(`^the credentials are retrieved$`, s.theCredentialsAreRetrieved)
	sc.Step(`^the last bootstrap outcome is "([^"]*)"$`, s.theLastBootstrapOutcomeIs)
	sc.Step(`^the secret store holds (\d+) versions? of the credentials$`, s.theSecretStoreHoldsVersions)
	sc.Step(`^the last error is credential drift$`, s.theLastErrorIs(bootstrap.ErrCredentialDrift))
	sc.Step(`^the last error is not bootstrapped$`, s.theLastErrorIs(bootstrap.ErrNotBootstrapped))

	// Dataset and ingestion steps
	sc.Step(`^a label table:$`, s.aLabelTable)
	sc.Step(`^volumes exist for "([^"]*)"$`, s.volumesExistFor)
	sc.Step(`^tomograms with annotation counts:$`, s.tomogramsWithAnnotationCounts)
	sc.Step(`^I ingest the label table$`, s.iIngestTheLabelTable)
	sc.Step(`^I ingest the label table with policy "([^"]*)"$`, s.iIngestWithPolicy)
	sc.Step(`^I delete tomogram "([^"]*)"$`, s.iDeleteTomogram)

	// Assertions
	sc.Step(`^(\d+) tomograms are stored$`, s.tomogramsAreStored)
	sc.Step(`^(\d+) annotations are stored$`, s.annotationsAreStored)
	sc.Step(`^tomogram "([^"]*)" has (\d+) annotations$`, s.tomogramHasAnnotations)
	sc.Step(`^tomogram "([^"]*)" is not stored$`, s.tomogramIsNotStored)
	sc.Step(`^(\d+) rows were skipped for a missing volume$`, s.rowsSkippedMissingVolume)
	sc.Step(`^(\d+) rows were skipped as malformed$`, s.rowsSkippedMalformed)
	sc.Step(`^(\d+) annotations were removed$`, s.annotationsWereRemoved)

	// Query steps
	sc.Step(`^I ask for tomograms with at least (\d+) annotations$`, s.iAskForRichTomograms)
	sc.Step(`^the rich tomograms are "([^"]*)"$`, s.theRichTomogramsAre)
	sc.Step(`^I request "([^"]*)"$`, s.iRequest)
	sc.Step(`^the response status should be (\d+)$`, s.theResponseStatusShouldBe)
	sc.Step(`^the response body should contain "(.*)"$`, s.theResponseBodyShouldContain)
}

// Background steps

func (s *StepsContext) anEmptySecretStore() error {
	s.tc.Vault.Reset()
	return nil
}

func (s *StepsContext) anEmptyDatabase() error {
	return s.tc.ResetDatabase()
}

func (s *StepsContext) theBootstrapEnvironment(table *godog.Table) error {
	s.env = map[string]string{}
	for _, row := range table.Rows {
		if len(row.Cells) != 2 {
			return fmt.Errorf("expected key | value rows")
		}
		s.env[row.Cells[0].Value] = row.Cells[1].Value
	}
	return nil
}

func (s *StepsContext) theDeploymentIsBootstrapped() error {
	if err := s.iBootstrap(); err != nil {
		return err
	}
	return s.lastErr
}

func (s *StepsContext) bootstrapper() (*bootstrap.Bootstrapper, error) {
	store, err := s.tc.VaultStore()
	if err != nil {
		return nil, err
	}
	if err := secrets.WaitReady(context.Background(), store, 1, 0, nil); err != nil {
		return nil, err
	}
	return bootstrap.New(store, secrets.DefaultPath, bootstrap.WithEnv(envOf(s.env))), nil
}

// Bootstrap steps

func (s *StepsContext) iRunThePipeline() error {
	b, err := s.bootstrapper()
	if err != nil {
		return err
	}
	s.lastResult, s.lastErr = b.Run(context.Background())
	if s.lastErr != nil || s.lastResult.Provisioned {
		return nil
	}
	return s.ingestWith(s.lastResult.Bundle, ingest.PolicyAppend)
}

func (s *StepsContext) iBootstrap() error {
	b, err := s.bootstrapper()
	if err != nil {
		return err
	}
	s.lastOutcome, s.lastErr = b.Provision(context.Background())
	return nil
}

func (s *StepsContext) theCredentialsAreProvisioned() error {
	if s.lastErr != nil {
		return s.lastErr
	}
	if !s.lastResult.Provisioned || s.lastResult.State != bootstrap.StateUninitialized {
		return fmt.Errorf("expected a provisioning run, got state %s", s.lastResult.State)
	}
	data, ok := s.tc.Vault.Secret("secret", secrets.DefaultPath)
	if !ok {
		return fmt.Errorf("nothing stored at %s", secrets.DefaultPath)
	}
	if data[secrets.KeyUser] != s.env[secrets.KeyUser] {
		return fmt.Errorf("stored user %v, want %s", data[secrets.KeyUser], s.env[secrets.KeyUser])
	}
	return nil
}

func (s *StepsContext) theCredentialsAreRetrieved() error {
	if s.lastErr != nil {
		return s.lastErr
	}
	if s.lastResult.Provisioned || s.lastResult.State != bootstrap.StateReady {
		return fmt.Errorf("expected a retrieval run, got state %s", s.lastResult.State)
	}
	if s.lastResult.Bundle.Username != s.env[secrets.KeyUser] {
		return fmt.Errorf("retrieved user %s, want %s", s.lastResult.Bundle.Username, s.env[secrets.KeyUser])
	}
	return nil
}

func (s *StepsContext) theLastBootstrapOutcomeIs(outcome string) error {
	if s.lastErr != nil {
		return s.lastErr
	}
	if string(s.lastOutcome) != outcome {
		return fmt.Errorf("expected outcome %s, got %s", outcome, s.lastOutcome)
	}
	return nil
}

func (s *StepsContext) theSecretStoreHoldsVersions(n int) error {
	if got := s.tc.Vault.Versions("secret", secrets.DefaultPath); got != n {
		return fmt.Errorf("expected %d versions, got %d", n, got)
	}
	return nil
}

func (s *StepsContext) theLastErrorIs(target error) func() error {
	return func() error {
		if !errors.Is(s.lastErr, target) {
			return fmt.Errorf("expected %v, got %v", target, s.lastErr)
		}
		return nil
	}
}

// Dataset and ingestion steps

func (s *StepsContext) labelsPath() string {
	return filepath.Join(s.dataDir, "labels.csv")
}

func (s *StepsContext) aLabelTable(table *godog.Table) error {
	var b strings.Builder
	for _, row := range table.Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = c.Value
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteString("\n")
	}
	return os.WriteFile(s.labelsPath(), []byte(b.String()), 0o644)
}

func (s *StepsContext) volumesExistFor(names string) error {
	for _, name := range strings.Split(names, ",") {
		path := filepath.Join(s.dataDir, "volumes", strings.TrimSpace(name)+dataset.DefaultVolumeExt)
		if err := writeVolume(path, 4, 8, 8); err != nil {
			return err
		}
	}
	return nil
}

func (s *StepsContext) tomogramsWithAnnotationCounts(table *godog.Table) error {
	var b strings.Builder
	b.WriteString("tomo_name,x,y,z\n")
	var empty []string
	for _, row := range table.Rows[1:] {
		name := row.Cells[0].Value
		n, err := strconv.Atoi(row.Cells[1].Value)
		if err != nil {
			return err
		}
		if n == 0 {
			empty = append(empty, name)
		}
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "%s,%d,%d,%d\n", name, i, i, i%4)
		}
		if err := writeVolume(filepath.Join(s.dataDir, "volumes", name+dataset.DefaultVolumeExt), 4, 8, 8); err != nil {
			return err
		}
	}
	if err := os.WriteFile(s.labelsPath(), []byte(b.String()), 0o644); err != nil {
		return err
	}
	if err := s.iIngestTheLabelTable(); err != nil {
		return err
	}
	if s.lastErr != nil {
		return s.lastErr
	}

	// a tomogram without annotations cannot come from the label table
	for _, name := range empty {
		if err := s.tc.Admin.Exec(
			"INSERT INTO tomograms (tomo_name, raw_volume_path) VALUES (?, ?)",
			name, dataset.RawVolumePath(name)).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *StepsContext) credentials() (secrets.Bundle, error) {
	b, err := s.bootstrapper()
	if err != nil {
		return secrets.Bundle{}, err
	}
	return b.Require(context.Background())
}

func (s *StepsContext) iIngestTheLabelTable() error {
	return s.iIngestWithPolicy(string(ingest.PolicyAppend))
}

func (s *StepsContext) iIngestWithPolicy(policy string) error {
	p, err := ingest.ParsePolicy(policy)
	if err != nil {
		return err
	}
	bundle, err := s.credentials()
	if err != nil {
		s.lastErr = err
		return nil
	}
	return s.ingestWith(bundle, p)
}

func (s *StepsContext) ingestWith(bundle secrets.Bundle, policy ingest.Policy) error {
	ctx := context.Background()
	database, err := pipelinedb.Connect(ctx, s.tc.DBConfig(bundle))
	if err != nil {
		return err
	}
	defer func() { _ = pipelinedb.Close(database) }()

	loader := dataset.NewLoader(s.labelsPath(), s.dataDir, logging.Discard())
	engine := ingest.NewEngine(database, ingest.WithPolicy(policy), ingest.WithSource(loader.TablePath))
	_, s.lastErr = engine.Ingest(ctx, loader.Scan(ctx, &s.lastStats))
	return nil
}

func (s *StepsContext) iDeleteTomogram(name string) error {
	bundle, err := s.credentials()
	if err != nil {
		return err
	}
	ctx := context.Background()
	database, err := pipelinedb.Connect(ctx, s.tc.DBConfig(bundle))
	if err != nil {
		return err
	}
	defer func() { _ = pipelinedb.Close(database) }()

	s.removed, s.lastErr = ingest.NewEngine(database).DeleteTomogram(ctx, name)
	return s.lastErr
}

// Assertions

func (s *StepsContext) count(sql string, args ...interface{}) (int64, error) {
	var n int64
	err := s.tc.Admin.Raw(sql, args...).Scan(&n).Error
	return n, err
}

func (s *StepsContext) tomogramsAreStored(n int) error {
	got, err := s.count("SELECT COUNT(*) FROM tomograms")
	if err != nil {
		return err
	}
	if got != int64(n) {
		return fmt.Errorf("expected %d tomograms, got %d", n, got)
	}
	return nil
}

func (s *StepsContext) annotationsAreStored(n int) error {
	got, err := s.count("SELECT COUNT(*) FROM annotations")
	if err != nil {
		return err
	}
	if got != int64(n) {
		return fmt.Errorf("expected %d annotations, got %d", n, got)
	}
	return nil
}

func (s *StepsContext) tomogramHasAnnotations(name string, n int) error {
	got, err := query.New(s.tc.Admin, nil).CountAnnotations(context.Background(), name)
	if err != nil {
		return err
	}
	if got != int64(n) {
		return fmt.Errorf("expected %d annotations for %s, got %d", n, name, got)
	}
	return nil
}

func (s *StepsContext) tomogramIsNotStored(name string) error {
	_, err := query.New(s.tc.Admin, nil).CountAnnotations(context.Background(), name)
	if !errors.Is(err, query.ErrTomogramNotFound) {
		return fmt.Errorf("expected %s to be absent, got %v", name, err)
	}
	return nil
}

func (s *StepsContext) rowsSkippedMissingVolume(n int) error {
	if s.lastStats.MissingVolume != n {
		return fmt.Errorf("expected %d rows skipped for missing volume, got %d", n, s.lastStats.MissingVolume)
	}
	return nil
}

func (s *StepsContext) rowsSkippedMalformed(n int) error {
	if s.lastStats.Malformed != n {
		return fmt.Errorf("expected %d malformed rows, got %d", n, s.lastStats.Malformed)
	}
	return nil
}

func (s *StepsContext) annotationsWereRemoved(n int) error {
	if s.removed != int64(n) {
		return fmt.Errorf("expected %d removed annotations, got %d", n, s.removed)
	}
	return nil
}

// Query steps

func (s *StepsContext) iAskForRichTomograms(minCount int) error {
	var err error
	s.rich, err = query.New(s.tc.Admin, nil).FindRichTomograms(context.Background(), int64(minCount))
	return err
}

func (s *StepsContext) theRichTomogramsAre(names string) error {
	got := make([]string, len(s.rich))
	for i, t := range s.rich {
		got[i] = t.TomoName
	}
	if strings.Join(got, ",") != names {
		return fmt.Errorf("expected %s, got %s", names, strings.Join(got, ","))
	}
	return nil
}

func (s *StepsContext) iRequest(path string) error {
	srv := server.NewServer(
		query.NewCached(query.New(s.tc.Admin, nil), 0, nil),
		server.NewDBHealth(s.tc.Admin),
		nil,
		logging.Discard(),
		"127.0.0.1:0",
	)
	endpoints.RegisterAll(srv)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	s.response = w.Result()
	body, err := io.ReadAll(s.response.Body)
	if err != nil {
		return err
	}
	s.responseBody = body
	return nil
}

func (s *StepsContext) theResponseStatusShouldBe(code int) error {
	if s.response == nil {
		return fmt.Errorf("no response received")
	}
	if s.response.StatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, s.response.StatusCode, string(s.responseBody))
	}
	return nil
}

func (s *StepsContext) theResponseBodyShouldContain(fragment string) error {
	fragment = strings.ReplaceAll(fragment, `\"`, `"`)
	if !strings.Contains(string(s.responseBody), fragment) {
		return fmt.Errorf("expected body to contain %s, got %s", fragment, string(s.responseBody))
	}
	return nil
}
