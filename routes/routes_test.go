package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/meinhoongagan/availability-engine/availability"
	"github.com/meinhoongagan/availability-engine/booking"
	"github.com/meinhoongagan/availability-engine/controllers"
	"github.com/meinhoongagan/availability-engine/db"
	"github.com/meinhoongagan/availability-engine/models"
	"github.com/meinhoongagan/availability-engine/repository"
	"github.com/meinhoongagan/availability-engine/utils"
)

const secret = "routes-test-secret"

// Sunday morning; the bookings below are on Monday 2025-06-02.
var clock = func() time.Time { return time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC) }

func newApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	conn, err := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, _ := conn.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	profiles := repository.NewAvailabilityRepository(conn)
	appointments := repository.NewAppointmentRepository(conn)
	users := repository.NewUserRepository(conn)

	avail := availability.NewService(profiles, appointments,
		availability.WithClock(clock), availability.WithLocation(time.UTC))
	bookings := booking.NewService(appointments, avail, appointments, booking.NewMachine(clock),
		booking.WithLocation(time.UTC))
	// Tokens are validated against the real clock, so the handlers keep time.Now.
	h := controllers.NewHandlers(avail, bookings, users, secret, time.Hour)

	app := fiber.New()
	Setup(app, h, secret)
	return app, conn
}

type apiResponse struct {
	status int
	body   []byte
}

func (r apiResponse) decode(t *testing.T, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.body, v); err != nil {
		t.Fatalf("decode %s: %v", r.body, err)
	}
}

func call(t *testing.T, app *fiber.App, method, path, token string, body interface{}) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return apiResponse{status: resp.StatusCode, body: raw}
}

func register(t *testing.T, app *fiber.App, name string) (string, string) {
	t.Helper()
	resp := call(t, app, http.MethodPost, "/auth/register", "", map[string]string{
		"name":     name,
		"email":    strings.ToLower(name) + "@example.com",
		"password": "correct horse",
	})
	if resp.status != fiber.StatusCreated {
		t.Fatalf("register %s: %d %s", name, resp.status, resp.body)
	}
	var out controllers.TokenResponse
	resp.decode(t, &out)
	if out.User.Password != "" {
		t.Fatalf("password hash must not be returned")
	}
	return out.User.ID, out.Token
}

func bobsProfile() map[string]interface{} {
	return map[string]interface{}{
		"days":                []int{1, 2, 3, 4, 5},
		"start":               "09:00",
		"end":                 "12:00",
		"slotDuration":        30,
		"buffer":              45,
		"maxPerDay":           5,
		"minPerDay":           2,
		"breakTimes":          []interface{}{},
		"minLeadTime":         1,
		"cancelNotice":        4,
		"appointmentDuration": map[string]int{"min": 15, "max": 60},
		"availabilityStatus":  "available",
	}
}

func TestAuthFlow(t *testing.T) {
	app, _ := newApp(t)
	aliceID, aliceToken := register(t, app, "Alice")

	if resp := call(t, app, http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Again", "email": "ALICE@example.com", "password": "correct horse",
	}); resp.status != fiber.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", resp.status)
	}

	resp := call(t, app, http.MethodPost, "/auth/register", "", map[string]string{"email": "nope"})
	if resp.status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for invalid registration, got %d", resp.status)
	}
	var errBody utils.ErrorResponse
	resp.decode(t, &errBody)
	if len(errBody.Fields) < 2 {
		t.Fatalf("expected every invalid field to be reported, got %v", errBody.Fields)
	}

	if resp := call(t, app, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	}); resp.status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong password, got %d", resp.status)
	}
	resp = call(t, app, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "correct horse",
	})
	if resp.status != fiber.StatusOK {
		t.Fatalf("login: %d %s", resp.status, resp.body)
	}

	resp = call(t, app, http.MethodGet, "/auth/me", aliceToken, nil)
	var me models.User
	resp.decode(t, &me)
	if resp.status != fiber.StatusOK || me.ID != aliceID || me.Password != "" {
		t.Fatalf("unexpected /auth/me response %d %+v", resp.status, me)
	}

	if resp := call(t, app, http.MethodGet, "/appointments", "", nil); resp.status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.status)
	}
}

func TestAvailabilitySettings(t *testing.T) {
	app, _ := newApp(t)
	bobID, bobToken := register(t, app, "Bob")
	_, aliceToken := register(t, app, "Alice")

	resp := call(t, app, http.MethodGet, "/availability/"+bobID, aliceToken, nil)
	var read controllers.AvailabilityResponse
	resp.decode(t, &read)
	defaults := read.Availability
	if resp.status != fiber.StatusOK || defaults.SlotDuration != 30 || defaults.CancelNotice != 24 || read.AvailabilityStatus != models.StatusAvailable {
		t.Fatalf("expected defaults for a user who never saved, got %d %+v", resp.status, defaults)
	}

	bad := bobsProfile()
	bad["start"] = "13:00"
	resp = call(t, app, http.MethodPost, "/availability", bobToken, bad)
	if resp.status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for start after end, got %d %s", resp.status, resp.body)
	}

	resp = call(t, app, http.MethodPost, "/availability", bobToken, bobsProfile())
	if resp.status != fiber.StatusOK {
		t.Fatalf("save availability: %d %s", resp.status, resp.body)
	}

	resp = call(t, app, http.MethodGet, "/availability", bobToken, nil)
	resp.decode(t, &read)
	mine := read.Availability
	if mine.UserID != bobID || mine.Buffer != 45 || mine.End != "12:00" {
		t.Fatalf("expected saved settings, got %+v", mine)
	}

	away := map[string]interface{}{"availability": bobsProfile(), "availabilityStatus": "away"}
	resp = call(t, app, http.MethodPost, "/availability", bobToken, away)
	resp.decode(t, &read)
	if resp.status != fiber.StatusOK || read.AvailabilityStatus != models.StatusAway || read.Availability.Buffer != 45 {
		t.Fatalf("expected the nested shape to be accepted, got %d %s", resp.status, resp.body)
	}

	resp = call(t, app, http.MethodGet, "/availability/"+bobID+"/slots?date=2025-06-01", aliceToken, nil)
	var sunday []availability.Slot
	resp.decode(t, &sunday)
	if resp.status != fiber.StatusOK || len(sunday) != 0 {
		t.Fatalf("expected no slots on a day off, got %d %v", resp.status, sunday)
	}

	if resp := call(t, app, http.MethodGet, "/availability/"+bobID+"/slots?date=June", aliceToken, nil); resp.status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed date, got %d", resp.status)
	}
}

func TestAppointmentLifecycle(t *testing.T) {
	app, _ := newApp(t)
	bobID, bobToken := register(t, app, "Bob")
	aliceID, aliceToken := register(t, app, "Alice")
	_, carolToken := register(t, app, "Carol")

	if resp := call(t, app, http.MethodPost, "/availability", bobToken, bobsProfile()); resp.status != fiber.StatusOK {
		t.Fatalf("save availability: %d %s", resp.status, resp.body)
	}

	slotsPath := "/availability/" + bobID + "/slots?date=2025-06-02"
	resp := call(t, app, http.MethodGet, slotsPath, aliceToken, nil)
	var slots []availability.Slot
	resp.decode(t, &slots)
	if len(slots) == 0 || slots[0].Time != "09:00" || slots[0].Label != "9:00 AM" {
		t.Fatalf("unexpected slots %+v", slots)
	}
	for _, s := range slots {
		if !s.Admitted {
			t.Fatalf("expected every slot to be open before any booking, %s was not", s.Time)
		}
	}

	book := map[string]interface{}{
		"participantId": bobID,
		"title":         "Intro call",
		"date":          "2025-06-02",
		"time":          "10:00 AM",
	}
	resp = call(t, app, http.MethodPost, "/appointments", aliceToken, book)
	if resp.status != fiber.StatusCreated {
		t.Fatalf("book: %d %s", resp.status, resp.body)
	}
	var a models.Appointment
	resp.decode(t, &a)
	if a.Status != models.StatusPending || a.CreatorID != aliceID || a.Duration != 30 {
		t.Fatalf("unexpected booking %+v", a)
	}

	book["time"] = "10:30"
	resp = call(t, app, http.MethodPost, "/appointments", aliceToken, book)
	var rejected utils.ErrorResponse
	resp.decode(t, &rejected)
	if resp.status != fiber.StatusConflict || rejected.Reason != string(availability.ReasonBuffer) {
		t.Fatalf("expected buffer conflict, got %d %+v", resp.status, rejected)
	}

	resp = call(t, app, http.MethodGet, slotsPath, aliceToken, nil)
	resp.decode(t, &slots)
	for _, s := range slots {
		if s.Time == "10:00" && (s.Admitted || s.Reason != availability.ReasonBuffer) {
			t.Fatalf("expected 10:00 to be blocked by the booking, got %+v", s)
		}
	}

	book["participantId"] = "nobody"
	if resp := call(t, app, http.MethodPost, "/appointments", aliceToken, book); resp.status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown participant, got %d", resp.status)
	}

	path := "/appointments/" + a.ID
	if resp := call(t, app, http.MethodGet, path, carolToken, nil); resp.status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for a stranger, got %d", resp.status)
	}
	if resp := call(t, app, http.MethodPatch, path, aliceToken, map[string]string{"status": "confirmed"}); resp.status != fiber.StatusForbidden {
		t.Fatalf("expected 403 when the creator accepts, got %d", resp.status)
	}

	resp = call(t, app, http.MethodPatch, path, bobToken, map[string]string{"status": "confirmed"})
	resp.decode(t, &a)
	if resp.status != fiber.StatusOK || a.Status != models.StatusConfirmed {
		t.Fatalf("accept: %d %s", resp.status, resp.body)
	}

	resp = call(t, app, http.MethodPatch, path, aliceToken, map[string]string{"time": "11:00"})
	resp.decode(t, &a)
	if resp.status != fiber.StatusOK || a.Status != models.StatusRescheduled || a.StartTime.Hour() != 11 {
		t.Fatalf("reschedule: %d %s", resp.status, resp.body)
	}

	resp = call(t, app, http.MethodPost, path, aliceToken, map[string]string{"status": "cancelled"})
	resp.decode(t, &a)
	if resp.status != fiber.StatusOK || a.Status != models.StatusCancelled {
		t.Fatalf("cancel through the POST alias: %d %s", resp.status, resp.body)
	}
	if resp := call(t, app, http.MethodPatch, path, bobToken, map[string]string{"status": "confirmed"}); resp.status != fiber.StatusConflict {
		t.Fatalf("expected 409 for a transition out of cancelled, got %d", resp.status)
	}

	resp = call(t, app, http.MethodGet, "/appointments", bobToken, nil)
	var list []models.Appointment
	resp.decode(t, &list)
	if len(list) != 1 {
		t.Fatalf("expected one appointment for bob, got %d", len(list))
	}

	if resp := call(t, app, http.MethodDelete, path, carolToken, nil); resp.status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for a stranger deleting, got %d", resp.status)
	}
	if resp := call(t, app, http.MethodDelete, path, aliceToken, nil); resp.status != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.status)
	}
	if resp := call(t, app, http.MethodGet, path, aliceToken, nil); resp.status != fiber.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.status)
	}
}

func TestRatingEndpoint(t *testing.T) {
	app, conn := newApp(t)
	bobID, bobToken := register(t, app, "Bob")
	aliceID, aliceToken := register(t, app, "Alice")

	start := time.Date(2025, time.May, 30, 10, 0, 0, 0, time.UTC)
	done := models.Appointment{
		CreatorID:     aliceID,
		ParticipantID: bobID,
		Date:          "2025-05-30",
		StartTime:     start,
		EndTime:       start.Add(30 * time.Minute),
		Duration:      30,
		Title:         "Retro",
		Status:        models.StatusCompleted,
	}
	if err := conn.Create(&done).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	path := "/appointments/" + done.ID + "/rating"

	if resp := call(t, app, http.MethodPost, path, aliceToken, map[string]interface{}{"rating": 9}); resp.status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for an out of range rating, got %d", resp.status)
	}

	resp := call(t, app, http.MethodPost, path, aliceToken, map[string]interface{}{"rating": 5, "feedback": " great "})
	var rated models.Appointment
	resp.decode(t, &rated)
	if resp.status != fiber.StatusOK || len(rated.Ratings) != 1 || rated.Ratings[0].Feedback != "great" {
		t.Fatalf("rate: %d %s", resp.status, resp.body)
	}

	if resp := call(t, app, http.MethodPost, path, aliceToken, map[string]interface{}{"rating": 4}); resp.status != fiber.StatusConflict {
		t.Fatalf("expected 409 for a second rating, got %d", resp.status)
	}
	if resp := call(t, app, http.MethodPost, path, bobToken, map[string]interface{}{"rating": 4}); resp.status != fiber.StatusOK {
		t.Fatalf("expected the other party to rate too, got %d", resp.status)
	}
}
