package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"metabolitics-api/models"
	"metabolitics-api/providers"
	"metabolitics-api/queue"
	"metabolitics-api/services"
	"metabolitics-api/storage"
	"metabolitics-api/testutil"
)

type stubBackend struct {
	method models.Method
}

func (b stubBackend) Method() models.Method { return b.method }

func (b stubBackend) Analyze(context.Context, providers.AnalysisInput) (*providers.Result, error) {
	return &providers.Result{
		Pathways:  models.MeasurementSet{"Glycolysis": 1.2, "TCA": -0.4},
		Reactions: models.MeasurementSet{"HEX1": 0.8},
	}, nil
}

type discardQueue struct{}

func (discardQueue) Enqueue(context.Context, queue.Job) error   { return nil }
func (discardQueue) Start(context.Context, queue.Handler) error { return nil }
func (discardQueue) Close() error                               { return nil }

type testServer struct {
	router    *gin.Engine
	db        *gorm.DB
	disease   models.Disease
	user      models.User
	modelsDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)
	db := testutil.NewTestDB(t)

	ts := &testServer{
		db:        db,
		disease:   testutil.SeedDisease(t, db, "Asthma", "J45"),
		user:      testutil.SeedUser(t, db, "researcher@example.org", "key-1"),
		modelsDir: t.TempDir(),
	}
	testutil.SeedUser(t, db, "public@metabolitics.local", "public-key")

	var backends []providers.Backend
	for _, m := range models.Methods {
		backends = append(backends, stubBackend{method: m})
	}
	notifier, err := services.NewMailNotifier("", time.Second, logger)
	require.NoError(t, err)

	vocab := services.NewVocabulary(map[string]string{"HMDB0000122": "glc__D_c"}, []string{"glc__D_c", "lac__L_c"})
	worker := services.NewAnalysisWorker(db, providers.NewRegistry(backends...), storage.NewMemoryClaimer(time.Minute), notifier, "http://metabolitics.test/past-analysis/", logger)
	svc := &appServices{
		Dispatcher: services.NewDispatcher(db,
			services.NewIdentifierMapper(vocab, logger),
			services.NewFoldChangeNormalizer(nil, logger),
			worker, discardQueue{}, notifier, "http://metabolitics.test/past-analysis/", logger),
		Ranker:      services.NewSimilarityRanker(db, nil, logger),
		Predictor:   services.NewDiseasePredictor(db, ts.modelsDir, logger),
		Catalog:     services.NewCatalog(db, logger),
		PublicOwner: services.PublicOwner{FallbackEmail: "public@metabolitics.local"},
	}

	router := gin.New()
	router.Use(apiKeyAuthMiddleware(db, logger))
	setupAnalysisRoutes(router, svc, logger)
	setupDiseaseRoutes(router, svc, logger)
	setupDeleteRoutes(router, svc, logger)
	setupModelRoutes(router, svc, logger)
	ts.router = router
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-KEY", apiKey)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func submission(disease uint, metabolites map[string]any) gin.H {
	return gin.H{
		"study_name": "Route study",
		"group":      "Control",
		"disease":    disease,
		"email":      "guest@example.org",
		"analysis": gin.H{
			"patient-1": gin.H{"Label": "Asthma", "Metabolites": metabolites},
		},
	}
}

func TestSubmitRequiresAPIKey(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/analysis/fva", "", submission(ts.disease.ID, map[string]any{"glc__D_c": 1}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/analysis/fva", "wrong-key", submission(ts.disease.ID, map[string]any{"glc__D_c": 1}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitMappingError(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/analysis/pathway-enrichment", "key-1", submission(ts.disease.ID, map[string]any{"unknown": 2}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"mapping_error"}`, w.Body.String())
}

func TestSubmitUnknownDisease(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/analysis/fva", "key-1", submission(999, map[string]any{"glc__D_c": 1}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublicDirectPathwayMappingRunsInline(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/analysis/direct-pathway-mapping/public", "", submission(ts.disease.ID, map[string]any{"HMDB0000122": "1.5"}))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		ID      uint `json:"id"`
		StudyID uint `json:"study_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotZero(t, resp.ID)

	var a models.Analysis
	require.NoError(t, ts.db.First(&a, resp.ID).Error)
	assert.Equal(t, models.StatusDone, a.Status)
	assert.Equal(t, models.VisibilityPublic, a.Type)
	assert.Equal(t, "guest@example.org", a.OwnerEmail)
	assert.NotNil(t, a.EndTime)

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/analysis/detail/%d", resp.ID), "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMostSimilarDiseasesStatusCodes(t *testing.T) {
	ts := newTestServer(t)
	private := testutil.SeedCompletedAnalysis(t, ts.db, testutil.CompletedAnalysis{
		Method: models.MethodFVA, Disease: ts.disease, Label: "Asthma", Owner: &ts.user,
		Pathways: models.MeasurementSet{"Glycolysis": 1},
	})
	pending := testutil.SeedCompletedAnalysis(t, ts.db, testutil.CompletedAnalysis{
		Method: models.MethodFVA, Disease: ts.disease, Label: "Asthma", Public: true,
	})
	testutil.SeedCompletedAnalysis(t, ts.db, testutil.CompletedAnalysis{
		Method: models.MethodFVA, Disease: ts.disease, Label: "Asthma", Public: true,
		Pathways: models.MeasurementSet{"Glycolysis": 2},
	})

	tests := []struct {
		name   string
		path   string
		apiKey string
		want   int
	}{
		{name: "malformed id", path: "/analysis/most-similar-diseases/abc", want: http.StatusNotFound},
		{name: "unknown id", path: "/analysis/most-similar-diseases/9999", want: http.StatusNotFound},
		{name: "private anonymous", path: fmt.Sprintf("/analysis/most-similar-diseases/%d", private.ID), want: http.StatusUnauthorized},
		{name: "pending results", path: fmt.Sprintf("/analysis/most-similar-diseases/%d", pending.ID), want: http.StatusConflict},
		{name: "owner", path: fmt.Sprintf("/analysis/most-similar-diseases/%d", private.ID), apiKey: "key-1", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, tt.path, tt.apiKey, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w := ts.do(t, http.MethodGet, fmt.Sprintf("/analysis/most-similar-diseases/%d", private.ID), "key-1", nil)
	assert.JSONEq(t, `{"Asthma (J45)":1}`, w.Body.String())
}

func TestModelScoresAndPrediction(t *testing.T) {
	ts := newTestServer(t)
	artifact := `{"disease":"Asthma","fold_number":5,"f1_score":0.9,"precision_score":0.8,"recall_score":0.7,"algorithm":"logistic",
		"model":{"type":"logistic_regression","classes":[0,1],"features":["HEX1"],"coef":[[3]],"intercept":[0]}}`
	require.NoError(t, os.WriteFile(filepath.Join(ts.modelsDir, "asthma.json"), []byte(artifact), 0o644))

	w := ts.do(t, http.MethodGet, "/models/scores", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"Asthma":{"fold_number":5,"f1_score":0.9,"precision_score":0.8,"recall_score":0.7,"algorithm":"logistic"}}`, w.Body.String())

	a := testutil.SeedCompletedAnalysis(t, ts.db, testutil.CompletedAnalysis{
		Method: models.MethodFVA, Disease: ts.disease, Label: "Asthma", Public: true,
		Pathways: models.MeasurementSet{"Glycolysis": 1}, Reaction: models.MeasurementSet{"HEX1": 1},
	})
	w = ts.do(t, http.MethodGet, fmt.Sprintf("/analysis/disease-prediction/%d", a.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"disease":"Asthma","pred_score":0.953}]`, w.Body.String())
}

func TestDeleteAnalyses(t *testing.T) {
	ts := newTestServer(t)
	owned := testutil.SeedCompletedAnalysis(t, ts.db, testutil.CompletedAnalysis{
		Method: models.MethodFVA, Disease: ts.disease, Label: "Asthma", Owner: &ts.user,
		Pathways: models.MeasurementSet{"Glycolysis": 1},
	})

	w := ts.do(t, http.MethodPost, "/delete/delete_analysis", "", gin.H{"analysis_ids": []uint{owned.ID}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/delete/delete_analysis", "public-key", gin.H{"analysis_ids": []uint{owned.ID}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/delete/delete_analysis", "key-1", gin.H{"analysis_ids": []uint{owned.ID}})
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	ts.db.Model(&models.Analysis{}).Where("id = ?", owned.ID).Count(&count)
	assert.Zero(t, count)
}

func TestDiseasesAndListings(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/diseases/all", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var diseases []models.Disease
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &diseases))
	require.Len(t, diseases, 1)
	assert.Equal(t, "Asthma", diseases[0].Name)

	w = ts.do(t, http.MethodGet, "/analysis/public", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/analysis/list", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
