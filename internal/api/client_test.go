package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hpc-job-metrics/internal/model"
)

const capstorExample = `{"time": [1000,1010], "read_bandwidth":[1,2], "write_bandwidth":[3,4], "read_iops":[5,6], "write_iops":[7,8], "metadata_ops":[9,10], "nodes_loadavg":[[1,1,1,1,1],[2,2,2,2,2]]}`

var testJob = model.JobRef{Cluster: "daint", JobID: "1611324"}

// metricsServer serves body for every request and records the last one.
func metricsServer(t *testing.T, status int, body string, last **http.Request) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if last != nil {
			*last = r.Clone(context.Background())
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func TestCapstorGlobal_Example(t *testing.T) {
	var req *http.Request
	s := metricsServer(t, http.StatusOK, capstorExample, &req)

	c := NewClient(s.URL, "abc123")
	resp, err := c.CapstorGlobal(context.Background(), testJob, Window{})
	require.NoError(t, err)

	require.NotNil(t, req)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/metrics/daint/1611324/capstor/global", req.URL.Path)
	assert.Equal(t, "Bearer abc123", req.Header.Get("Authorization"))
	assert.Empty(t, req.URL.RawQuery)

	f := resp.Frame()
	require.NoError(t, f.Validate())
	require.Len(t, f.Series, 5)
	assert.Equal(t, 2, f.Len())
	for _, s := range f.Series {
		assert.Len(t, s.Values, 2, s.Name)
	}
	assert.Equal(t, time.Unix(1000, 0), f.Time[0])
	rb, ok := f.Get(ReadBandwidth)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2}, rb.Values)
	md, _ := f.Get(MetadataOps)
	assert.Equal(t, []float64{9, 10}, md.Values)

	load := resp.LoadFrame()
	require.Len(t, load.Series, LoadBuckets)
	assert.Equal(t, []float64{1, 2}, load.Series[3].Values)
	assert.Equal(t, "#nodes high load", load.Series[3].Label)
	assert.Equal(t, "#nodes very high load", load.Series[4].Label)
}

func TestFetch_WindowQuery(t *testing.T) {
	var req *http.Request
	s := metricsServer(t, http.StatusOK, capstorExample, &req)

	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)
	w := Window{
		From: time.Date(2025, 3, 1, 10, 0, 0, 0, zurich),
		To:   time.Date(2025, 3, 1, 11, 30, 0, 0, zurich),
	}
	_, err = NewClient(s.URL+"/", "t").CapstorGlobal(context.Background(), testJob, w)
	require.NoError(t, err)
	assert.Equal(t, "/metrics/daint/1611324/capstor/global", req.URL.Path)
	assert.Equal(t, "2025-03-01T10:00:00", req.URL.Query().Get("from"))
	assert.Equal(t, "2025-03-01T11:30:00", req.URL.Query().Get("to"))
}

func TestFetch_Non2xxIsHTTPError(t *testing.T) {
	s := metricsServer(t, http.StatusForbidden, `{"error":"nope"}`, nil)

	_, err := NewClient(s.URL, "t").CapstorGlobal(context.Background(), testJob, Window{})
	require.Error(t, err)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "nope")
	assert.Contains(t, err.Error(), "403")
}

func TestFetch_ServerErrorNotRetriedByDefault(t *testing.T) {
	calls := 0
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer s.Close()

	_, err := NewClient(s.URL, "t").CapstorGlobal(context.Background(), testJob, Window{})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestFetch_RetriesWhenConfigured(t *testing.T) {
	calls := 0
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(capstorExample))
	}))
	defer s.Close()

	hc := NewHTTPClient(5*time.Second, 1, zerolog.Nop())
	hc.RetryWaitMin = time.Millisecond
	hc.RetryWaitMax = time.Millisecond
	_, err := NewClient(s.URL, "t", WithHTTPClient(hc)).CapstorGlobal(context.Background(), testJob, Window{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFetch_SchemaErrors(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"missing time", `{"read_bandwidth":[1]}`, "time"},
		{"missing series", `{"time":[1], "read_bandwidth":[1], "write_bandwidth":[1], "read_iops":[1], "write_iops":[1], "nodes_loadavg":[[0,0,0,0,0]]}`, MetadataOps},
		{"length mismatch", `{"time":[1,2], "read_bandwidth":[1,2], "write_bandwidth":[1], "read_iops":[1,2], "write_iops":[1,2], "metadata_ops":[1,2], "nodes_loadavg":[[0,0,0,0,0],[0,0,0,0,0]]}`, WriteBandwidth},
		{"short bucket", `{"time":[1], "read_bandwidth":[1], "write_bandwidth":[1], "read_iops":[1], "write_iops":[1], "metadata_ops":[1], "nodes_loadavg":[[0,0,0]]}`, "nodes_loadavg[0]"},
		{"type mismatch", `{"time":["noon"]}`, "time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := metricsServer(t, http.StatusOK, tc.body, nil)
			_, err := NewClient(s.URL, "t").CapstorGlobal(context.Background(), testJob, Window{})
			var schemaErr *SchemaError
			require.True(t, errors.As(err, &schemaErr), "got %v", err)
			assert.Equal(t, PathCapstorGlobal, schemaErr.Endpoint)
			assert.Equal(t, tc.field, schemaErr.Field)
		})
	}
}

func TestFetch_MalformedJSON(t *testing.T) {
	s := metricsServer(t, http.StatusOK, `{"time": [1,`, nil)
	_, err := NewClient(s.URL, "t").CapstorGlobal(context.Background(), testJob, Window{})
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.True(t, strings.HasPrefix(schemaErr.Reason, "malformed json"))
}

func TestFetch_UntypedTarget(t *testing.T) {
	s := metricsServer(t, http.StatusOK, `{"time":[1], "custom":[2]}`, nil)
	var out map[string]any
	require.NoError(t, NewClient(s.URL, "t").Fetch(context.Background(), testJob, "custom/path", Window{}, &out))
	assert.Contains(t, out, "custom")
}

func TestGPUTemperature_Example(t *testing.T) {
	var req *http.Request
	s := metricsServer(t, http.StatusOK, `{"time":[1000], "nodes":{"n1":[{"gpu_id":0,"temperature":[55]}]}}`, &req)

	resp, err := NewClient(s.URL, "t").GPUTemperature(context.Background(), testJob, "", Window{})
	require.NoError(t, err)
	assert.Equal(t, "/metrics/daint/1611324/gpu/temperature", req.URL.Path)

	node, ok := resp.DefaultNode()
	require.True(t, ok)
	assert.Equal(t, "n1", node)

	f, err := resp.Frame(node)
	require.NoError(t, err)
	require.Len(t, f.Series, 1)
	assert.Equal(t, "GPU 0", f.Series[0].Label)
	assert.Equal(t, []float64{55}, f.Series[0].Values)
	assert.Equal(t, UnitTemperature, f.Series[0].Unit)
}

func TestGPUTemperature_NodePathAndAltSpelling(t *testing.T) {
	var req *http.Request
	body := `{"time":[1,2], "nodes":{"nid002":[{"gpu_id":1,"temperatures":[40,41],"temperatures_unit":"°C"},{"gpu_id":0,"temperatures":[42,43]}]}}`
	s := metricsServer(t, http.StatusOK, body, &req)

	resp, err := NewClient(s.URL, "t").GPUTemperature(context.Background(), testJob, "nid002", Window{})
	require.NoError(t, err)
	assert.Equal(t, "/metrics/daint/1611324/nid002/gpu/temperature", req.URL.Path)

	f, err := resp.Frame("nid002")
	require.NoError(t, err)
	require.Len(t, f.Series, 2)
	assert.Equal(t, "GPU 1", f.Series[0].Label)
	assert.Equal(t, []float64{42, 43}, f.Series[1].Values)

	_, err = resp.Frame("other")
	require.Error(t, err)
}

func TestGPUTemperature_DefaultNodeIsSorted(t *testing.T) {
	body := `{"time":[1], "nodes":{"n2":[{"gpu_id":0,"temperature":[1]}], "n1":[{"gpu_id":3,"temperature":[2]}]}}`
	s := metricsServer(t, http.StatusOK, body, nil)
	resp, err := NewClient(s.URL, "t").GPUTemperature(context.Background(), testJob, "", Window{})
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2"}, resp.NodeIDs())
	node, _ := resp.DefaultNode()
	assert.Equal(t, "n1", node)
}

func TestGPUTemperature_SchemaErrors(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"missing nodes", `{"time":[1]}`, "nodes"},
		{"missing gpu id", `{"time":[1], "nodes":{"n1":[{"temperature":[1]}]}}`, "gpu_id"},
		{"missing temperature", `{"time":[1], "nodes":{"n1":[{"gpu_id":0}]}}`, "temperature"},
		{"length mismatch", `{"time":[1,2], "nodes":{"n1":[{"gpu_id":0,"temperature":[1]}]}}`, "nodes.n1[0].temperature"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := metricsServer(t, http.StatusOK, tc.body, nil)
			_, err := NewClient(s.URL, "t").GPUTemperature(context.Background(), testJob, "", Window{})
			var schemaErr *SchemaError
			require.True(t, errors.As(err, &schemaErr), "got %v", err)
			assert.Equal(t, tc.field, schemaErr.Field)
			assert.Equal(t, PathGPUTemperature, schemaErr.Endpoint)
		})
	}
}

func TestURL_EscapesSegments(t *testing.T) {
	c := NewClient("https://example.org/api/", "t")
	got := c.URL(model.JobRef{Cluster: "a b", JobID: "1/2"}, "/capstor/global", Window{})
	assert.Equal(t, "https://example.org/api/metrics/a%20b/1%2F2/capstor/global", got)
}
