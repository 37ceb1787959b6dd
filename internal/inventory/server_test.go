package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/freshkeep/freshkeep/internal/imaging"
	"github.com/freshkeep/freshkeep/internal/vision"
)

var _ = Describe("Server", func() {
	var (
		recognizer *mockRecognizer
		service    *Service
		server     *Server
		now        time.Time
	)

	BeforeEach(func() {
		now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
		recognizer = &mockRecognizer{}
		service = NewServiceWithDeps(NewStore(), NewImageStore(), recognizer, &mockIDGenerator{}, &mockTimeSource{now: now})
		server = NewServer(service, nil, vision.PrecisionFP32, BasicAuth{})
	})

	do := func(req *http.Request) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		return rec
	}

	uploadScan := func() *httptest.ResponseRecorder {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("file", "fridge.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(testPNG(4, 4))
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		req := httptest.NewRequest("POST", "/api/scans", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return do(req)
	}

	addItem := func(name, category, expiry string) *httptest.ResponseRecorder {
		payload := fmt.Sprintf(`{"name": %q, "category": %q, "expiry_date": %q}`, name, category, expiry)
		req := httptest.NewRequest("POST", "/api/items", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		return do(req)
	}

	Describe("POST /api/scans", func() {
		BeforeEach(func() {
			recognizer.candidates = []vision.Candidate{{Name: "banana", Confidence: 0.9}}
		})

		It("opens a review session", func() {
			rec := uploadScan()
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var session ReviewSession
			Expect(json.Unmarshal(rec.Body.Bytes(), &session)).To(Succeed())
			Expect(session.Candidates).To(HaveLen(1))
			Expect(session.Candidates[0].Name).To(Equal("banana"))
		})

		It("rejects a missing file", func() {
			req := httptest.NewRequest("POST", "/api/scans", bytes.NewBufferString("no file"))
			req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
			Expect(do(req).Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 409 while a scan is in flight", func() {
			recognizer.block = make(chan struct{})
			firstDone := make(chan *httptest.ResponseRecorder, 1)
			go func() {
				firstDone <- uploadScan()
			}()

			Eventually(func() int {
				recognizer.mu.Lock()
				defer recognizer.mu.Unlock()
				return recognizer.calls
			}).Should(Equal(1))

			Expect(uploadScan().Code).To(Equal(http.StatusConflict))

			close(recognizer.block)
			Expect((<-firstDone).Code).To(Equal(http.StatusCreated))
		})

		It("returns 502 when recognition fails", func() {
			recognizer.err = fmt.Errorf("%w: model offline", vision.ErrRecognition)
			Expect(uploadScan().Code).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("scan review flow", func() {
		var sessionID string

		BeforeEach(func() {
			recognizer.candidates = []vision.Candidate{
				{Name: "banana", Confidence: 0.9},
				{Name: "milk", Confidence: 0.8},
			}
			rec := uploadScan()
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var session ReviewSession
			Expect(json.Unmarshal(rec.Body.Bytes(), &session)).To(Succeed())
			sessionID = session.ID
		})

		It("accepts the session into the inventory", func() {
			payload := `{"expiry_date": "2024-06-20"}`
			req := httptest.NewRequest("POST", "/api/scans/"+sessionID+"/accept", bytes.NewBufferString(payload))
			rec := do(req)
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var items []*FoodItem
			Expect(json.Unmarshal(rec.Body.Bytes(), &items)).To(Succeed())
			Expect(items).To(HaveLen(2))

			listRec := do(httptest.NewRequest("GET", "/api/items", nil))
			Expect(listRec.Code).To(Equal(http.StatusOK))
			var listed []*FoodItem
			Expect(json.Unmarshal(listRec.Body.Bytes(), &listed)).To(Succeed())
			Expect(listed).To(HaveLen(2))
		})

		It("serves the scan image for accepted items", func() {
			payload := `{"expiry_date": "2024-06-20"}`
			rec := do(httptest.NewRequest("POST", "/api/scans/"+sessionID+"/accept", bytes.NewBufferString(payload)))
			Expect(rec.Code).To(Equal(http.StatusCreated))

			var items []*FoodItem
			Expect(json.Unmarshal(rec.Body.Bytes(), &items)).To(Succeed())
			imageRec := do(httptest.NewRequest("GET", items[0].ImageURL, nil))
			Expect(imageRec.Code).To(Equal(http.StatusOK))
			Expect(imageRec.Header().Get("Content-Type")).To(Equal("image/png"))
		})

		It("cancels the session leaving the inventory empty", func() {
			Expect(do(httptest.NewRequest("DELETE", "/api/scans/"+sessionID, nil)).Code).To(Equal(http.StatusNoContent))

			rec := do(httptest.NewRequest("GET", "/api/items", nil))
			var listed []*FoodItem
			Expect(json.Unmarshal(rec.Body.Bytes(), &listed)).To(Succeed())
			Expect(listed).To(BeEmpty())
		})

		It("rejects an invalid expiry date", func() {
			payload := `{"expiry_date": "soon"}`
			rec := do(httptest.NewRequest("POST", "/api/scans/"+sessionID+"/accept", bytes.NewBufferString(payload)))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for an unknown session", func() {
			payload := `{"expiry_date": "2024-06-20"}`
			rec := do(httptest.NewRequest("POST", "/api/scans/missing/accept", bytes.NewBufferString(payload)))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("item management", func() {
		BeforeEach(func() {
			Expect(addItem("Milk", "dairy", "2024-06-20").Code).To(Equal(http.StatusCreated))
			Expect(addItem("Bread", "bakery", "2024-06-17").Code).To(Equal(http.StatusCreated))
			Expect(addItem("Yogurt", "dairy", "2024-06-14").Code).To(Equal(http.StatusCreated))
		})

		listNames := func(query string) []string {
			rec := do(httptest.NewRequest("GET", "/api/items"+query, nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			var items []*FoodItem
			Expect(json.Unmarshal(rec.Body.Bytes(), &items)).To(Succeed())
			names := make([]string, 0, len(items))
			for _, item := range items {
				names = append(names, item.Name)
			}
			return names
		}

		It("filters by search, category and bucket", func() {
			Expect(listNames("")).To(Equal([]string{"Milk", "Bread", "Yogurt"}))
			Expect(listNames("?search=milk")).To(Equal([]string{"Milk"}))
			Expect(listNames("?category=dairy")).To(Equal([]string{"Milk", "Yogurt"}))
			Expect(listNames("?bucket=expired")).To(Equal([]string{"Yogurt"}))
			Expect(listNames("?category=dairy&bucket=safe")).To(Equal([]string{"Milk"}))
		})

		It("rejects an unknown bucket value", func() {
			rec := do(httptest.NewRequest("GET", "/api/items?bucket=stale", nil))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("toggles the consumed flag", func() {
			rec := do(httptest.NewRequest("GET", "/api/items?search=milk", nil))
			var items []*FoodItem
			Expect(json.Unmarshal(rec.Body.Bytes(), &items)).To(Succeed())

			toggleRec := do(httptest.NewRequest("POST", "/api/items/"+items[0].ID+"/consumed", nil))
			Expect(toggleRec.Code).To(Equal(http.StatusOK))

			var updated FoodItem
			Expect(json.Unmarshal(toggleRec.Body.Bytes(), &updated)).To(Succeed())
			Expect(updated.Consumed).To(BeTrue())
		})

		It("deletes an item", func() {
			rec := do(httptest.NewRequest("GET", "/api/items?search=bread", nil))
			var items []*FoodItem
			Expect(json.Unmarshal(rec.Body.Bytes(), &items)).To(Succeed())

			Expect(do(httptest.NewRequest("DELETE", "/api/items/"+items[0].ID, nil)).Code).To(Equal(http.StatusNoContent))
			Expect(listNames("")).To(Equal([]string{"Milk", "Yogurt"}))
		})

		It("summarizes expiry buckets", func() {
			rec := do(httptest.NewRequest("GET", "/api/summary", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var summary Summary
			Expect(json.Unmarshal(rec.Body.Bytes(), &summary)).To(Succeed())
			Expect(summary.Total).To(Equal(3))
			Expect(summary.Expired).To(Equal(1))
			Expect(summary.ExpiringSoon).To(Equal(1))
			Expect(summary.Safe).To(Equal(1))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			server = NewServer(service, nil, vision.PrecisionFP32, BasicAuth{Username: "user", Password: "secret"})
		})

		It("rejects unauthenticated API requests", func() {
			rec := do(httptest.NewRequest("GET", "/api/items", nil))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("accepts valid credentials", func() {
			req := httptest.NewRequest("GET", "/api/items", nil)
			req.SetBasicAuth("user", "secret")
			Expect(do(req).Code).To(Equal(http.StatusOK))
		})

		It("leaves the health check open", func() {
			rec := do(httptest.NewRequest("GET", "/healthz", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("GET /healthz", func() {
		It("reports ok", func() {
			rec := do(httptest.NewRequest("GET", "/healthz", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("ok"))
		})
	})

	Describe("camera routes", func() {
		It("are absent when no capture source is configured", func() {
			rec := do(httptest.NewRequest("GET", "/api/camera", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})
})

var _ = Describe("Server context handling", func() {
	It("passes the request context through to recognition", func() {
		recognizer := &contextRecognizer{}
		service := NewServiceWithDeps(NewStore(), NewImageStore(), recognizer, &mockIDGenerator{}, &mockTimeSource{now: time.Now()})

		bitmap := &imaging.Bitmap{Width: 1, Height: 1, PNG: testPNG(1, 1)}
		_, err := service.ScanBitmap(context.WithValue(context.Background(), ctxKey{}, "marker"), bitmap, vision.PrecisionFP32)
		Expect(err).NotTo(HaveOccurred())
		Expect(recognizer.sawMarker).To(BeTrue())
	})
})

type ctxKey struct{}

type contextRecognizer struct {
	sawMarker bool
}

func (r *contextRecognizer) Recognize(ctx context.Context, bitmap *imaging.Bitmap, precision vision.Precision) ([]vision.Candidate, error) {
	r.sawMarker = ctx.Value(ctxKey{}) == "marker"
	return nil, nil
}
