package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"clock-in-system/backend/internal/model"
	"clock-in-system/backend/internal/repository"
	pkgerrors "clock-in-system/backend/pkg/errors"
)

// 所有 mock 均保存副本，模拟数据库读写语义

type idGen struct{ n int }

func (g *idGen) next(prefix string) string {
	g.n++
	return fmt.Sprintf("%s-%d", prefix, g.n)
}

// ── Mock StoreRepository ──

type mockStoreRepo struct {
	stores map[string]*model.Store
}

func newMockStoreRepo() *mockStoreRepo {
	return &mockStoreRepo{stores: make(map[string]*model.Store)}
}

func (m *mockStoreRepo) Create(_ context.Context, store *model.Store) error {
	if store.StoreID == "" {
		store.StoreID = "store-" + store.Name
	}
	cp := *store
	m.stores[store.StoreID] = &cp
	return nil
}

func (m *mockStoreRepo) GetByID(_ context.Context, id string) (*model.Store, error) {
	if s, ok := m.stores[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStoreRepo) List(_ context.Context, activeOnly bool) ([]model.Store, error) {
	var result []model.Store
	for _, s := range m.stores {
		if activeOnly && !s.IsActive {
			continue
		}
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StoreID < result[j].StoreID })
	return result, nil
}

func (m *mockStoreRepo) Update(_ context.Context, store *model.Store) error {
	cp := *store
	m.stores[store.StoreID] = &cp
	return nil
}

// ── Mock EmployeeRepository ──

type mockEmployeeRepo struct {
	employees map[string]*model.Employee
	locked    []string // GetByIDForUpdate 的调用顺序
}

func newMockEmployeeRepo() *mockEmployeeRepo {
	return &mockEmployeeRepo{employees: make(map[string]*model.Employee)}
}

func (m *mockEmployeeRepo) Create(_ context.Context, e *model.Employee) error {
	if e.EmployeeID == "" {
		e.EmployeeID = "emp-" + e.Name
	}
	cp := *e
	m.employees[e.EmployeeID] = &cp
	return nil
}

func (m *mockEmployeeRepo) GetByID(_ context.Context, id string) (*model.Employee, error) {
	if e, ok := m.employees[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEmployeeRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Employee, error) {
	m.locked = append(m.locked, id)
	return m.GetByID(ctx, id)
}

func (m *mockEmployeeRepo) wasLocked(id string) bool {
	for _, l := range m.locked {
		if l == id {
			return true
		}
	}
	return false
}

// ── Mock MembershipRepository ──

type mockMembershipRepo struct {
	members map[string]*model.StoreMembership // key: employee|store
}

func newMockMembershipRepo() *mockMembershipRepo {
	return &mockMembershipRepo{members: make(map[string]*model.StoreMembership)}
}

func (m *mockMembershipRepo) Create(_ context.Context, sm *model.StoreMembership) error {
	cp := *sm
	m.members[sm.EmployeeID+"|"+sm.StoreID] = &cp
	return nil
}

func (m *mockMembershipRepo) Get(_ context.Context, employeeID, storeID string) (*model.StoreMembership, error) {
	if sm, ok := m.members[employeeID+"|"+storeID]; ok {
		cp := *sm
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockMembershipRepo) ListManagers(_ context.Context, storeID string) ([]model.StoreMembership, error) {
	var result []model.StoreMembership
	for _, sm := range m.members {
		if sm.StoreID == storeID && sm.IsManager {
			result = append(result, *sm)
		}
	}
	return result, nil
}

// ── Mock ActivityRepository ──

type mockActivityRepo struct {
	ids        *idGen
	activities map[string]*model.Activity
}

func newMockActivityRepo(ids *idGen) *mockActivityRepo {
	return &mockActivityRepo{ids: ids, activities: make(map[string]*model.Activity)}
}

func (m *mockActivityRepo) Create(_ context.Context, a *model.Activity) error {
	if a.ActivityID == "" {
		a.ActivityID = m.ids.next("act")
	}
	cp := *a
	m.activities[a.ActivityID] = &cp
	return nil
}

func (m *mockActivityRepo) GetByID(_ context.Context, id string) (*model.Activity, error) {
	if a, ok := m.activities[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockActivityRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Activity, error) {
	return m.GetByID(ctx, id)
}

func (m *mockActivityRepo) GetOpen(_ context.Context, employeeID, storeID string) (*model.Activity, error) {
	for _, a := range m.activities {
		if a.EmployeeID == employeeID && a.StoreID == storeID && a.IsOpen() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockActivityRepo) GetLastClosed(_ context.Context, employeeID string) (*model.Activity, error) {
	var last *model.Activity
	for _, a := range m.activities {
		if a.EmployeeID != employeeID || a.IsOpen() {
			continue
		}
		if last == nil || a.LogoutTimestamp.After(*last.LogoutTimestamp) {
			last = a
		}
	}
	if last == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *last
	return &cp, nil
}

func (m *mockActivityRepo) filter(keep func(*model.Activity) bool) []model.Activity {
	var result []model.Activity
	for _, a := range m.activities {
		if keep(a) {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].LoginTime.Equal(result[j].LoginTime) {
			return result[i].LoginTime.Before(result[j].LoginTime)
		}
		return result[i].ActivityID < result[j].ActivityID
	})
	return result
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (m *mockActivityRepo) ListByEmployeeStore(_ context.Context, employeeID, storeID string, from, to time.Time) ([]model.Activity, error) {
	return m.filter(func(a *model.Activity) bool {
		return a.EmployeeID == employeeID && a.StoreID == storeID && inRange(a.LoginTime, from, to)
	}), nil
}

func (m *mockActivityRepo) ListClosedByStore(_ context.Context, storeID string, from, to time.Time) ([]model.Activity, error) {
	return m.filter(func(a *model.Activity) bool {
		return a.StoreID == storeID && !a.IsOpen() && inRange(a.LoginTime, from, to)
	}), nil
}

func (m *mockActivityRepo) ListOpenByStore(_ context.Context, storeID string) ([]model.Activity, error) {
	return m.filter(func(a *model.Activity) bool {
		return a.StoreID == storeID && a.IsOpen()
	}), nil
}

func (m *mockActivityRepo) Update(_ context.Context, a *model.Activity) error {
	if _, ok := m.activities[a.ActivityID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *a
	m.activities[a.ActivityID] = &cp
	return nil
}

func (m *mockActivityRepo) Delete(_ context.Context, id string) error {
	delete(m.activities, id)
	return nil
}

func (m *mockActivityRepo) openCount(employeeID, storeID string) int {
	n := 0
	for _, a := range m.activities {
		if a.EmployeeID == employeeID && a.StoreID == storeID && a.IsOpen() {
			n++
		}
	}
	return n
}

// ── Mock ShiftRepository ──

type mockShiftRepo struct {
	ids    *idGen
	shifts map[string]*model.Shift
}

func newMockShiftRepo(ids *idGen) *mockShiftRepo {
	return &mockShiftRepo{ids: ids, shifts: make(map[string]*model.Shift)}
}

func (m *mockShiftRepo) Create(_ context.Context, shift *model.Shift) error {
	if shift.ShiftID == "" {
		shift.ShiftID = m.ids.next("shift")
	}
	if shift.Version == 0 {
		shift.Version = 1
	}
	cp := *shift
	m.shifts[shift.ShiftID] = &cp
	return nil
}

func (m *mockShiftRepo) GetByID(_ context.Context, id string) (*model.Shift, error) {
	if s, ok := m.shifts[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockShiftRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Shift, error) {
	return m.GetByID(ctx, id)
}

func (m *mockShiftRepo) filter(keep func(*model.Shift) bool) []model.Shift {
	var result []model.Shift
	for _, s := range m.shifts {
		if !s.IsDeleted && keep(s) {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		di, dj := result[i].Date.Format("2006-01-02"), result[j].Date.Format("2006-01-02")
		if di != dj {
			return di < dj
		}
		if result[i].StartTime != result[j].StartTime {
			return result[i].StartTime < result[j].StartTime
		}
		return result[i].ShiftID < result[j].ShiftID
	})
	return result
}

func (m *mockShiftRepo) ListByEmployeeStoreDate(_ context.Context, employeeID, storeID, date string) ([]model.Shift, error) {
	return m.filter(func(s *model.Shift) bool {
		return s.EmployeeID == employeeID && s.StoreID == storeID && s.Date.Format("2006-01-02") == date
	}), nil
}

func (m *mockShiftRepo) ListByStoreRange(_ context.Context, storeID, from, to string) ([]model.Shift, error) {
	return m.filter(func(s *model.Shift) bool {
		d := s.Date.Format("2006-01-02")
		return s.StoreID == storeID && d >= from && d <= to
	}), nil
}

func (m *mockShiftRepo) Update(_ context.Context, shift *model.Shift) error {
	cur, ok := m.shifts[shift.ShiftID]
	if !ok || cur.Version != shift.Version {
		return pkgerrors.ErrOptimisticLock
	}
	shift.Version++
	cp := *shift
	m.shifts[shift.ShiftID] = &cp
	return nil
}

func (m *mockShiftRepo) SoftDelete(_ context.Context, shift *model.Shift) error {
	cur, ok := m.shifts[shift.ShiftID]
	if !ok || cur.Version != shift.Version {
		return pkgerrors.ErrOptimisticLock
	}
	shift.IsDeleted = true
	shift.Version++
	cp := *shift
	m.shifts[shift.ShiftID] = &cp
	return nil
}

func (m *mockShiftRepo) active() []model.Shift {
	return m.filter(func(*model.Shift) bool { return true })
}

// ── Mock ShiftExceptionRepository ──

type mockExceptionRepo struct {
	ids        *idGen
	exceptions map[string]*model.ShiftException
}

func newMockExceptionRepo(ids *idGen) *mockExceptionRepo {
	return &mockExceptionRepo{ids: ids, exceptions: make(map[string]*model.ShiftException)}
}

// checkUnique 模拟两侧外键的唯一索引
func (m *mockExceptionRepo) checkUnique(e *model.ShiftException) error {
	for id, other := range m.exceptions {
		if id == e.ExceptionID {
			continue
		}
		if e.ShiftID != nil && other.LinksShift(*e.ShiftID) {
			return fmt.Errorf("uk_shift_exceptions_shift: %s", *e.ShiftID)
		}
		if e.ActivityID != nil && other.LinksActivity(*e.ActivityID) {
			return fmt.Errorf("uk_shift_exceptions_activity: %s", *e.ActivityID)
		}
	}
	if e.ShiftID == nil && e.ActivityID == nil {
		return fmt.Errorf("chk_shift_exceptions_link")
	}
	return nil
}

func (m *mockExceptionRepo) Create(_ context.Context, e *model.ShiftException) error {
	if e.ExceptionID == "" {
		e.ExceptionID = m.ids.next("ex")
	}
	if err := m.checkUnique(e); err != nil {
		return err
	}
	cp := *e
	m.exceptions[e.ExceptionID] = &cp
	return nil
}

func (m *mockExceptionRepo) GetByID(_ context.Context, id string) (*model.ShiftException, error) {
	if e, ok := m.exceptions[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockExceptionRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.ShiftException, error) {
	return m.GetByID(ctx, id)
}

func (m *mockExceptionRepo) GetByShift(_ context.Context, shiftID string) (*model.ShiftException, error) {
	for _, e := range m.exceptions {
		if e.LinksShift(shiftID) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockExceptionRepo) GetByActivity(_ context.Context, activityID string) (*model.ShiftException, error) {
	for _, e := range m.exceptions {
		if e.LinksActivity(activityID) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockExceptionRepo) ListPendingByStore(_ context.Context, storeID string) ([]model.ShiftException, error) {
	var result []model.ShiftException
	for _, e := range m.exceptions {
		if e.StoreID == storeID && !e.IsApproved {
			result = append(result, *e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExceptionID < result[j].ExceptionID })
	return result, nil
}

func (m *mockExceptionRepo) Update(_ context.Context, e *model.ShiftException) error {
	if _, ok := m.exceptions[e.ExceptionID]; !ok {
		return gorm.ErrRecordNotFound
	}
	if err := m.checkUnique(e); err != nil {
		return err
	}
	cp := *e
	cp.Shift, cp.Activity = nil, nil
	m.exceptions[e.ExceptionID] = &cp
	return nil
}

func (m *mockExceptionRepo) Delete(_ context.Context, id string) error {
	delete(m.exceptions, id)
	return nil
}

func (m *mockExceptionRepo) all() []model.ShiftException {
	result := make([]model.ShiftException, 0, len(m.exceptions))
	for _, e := range m.exceptions {
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExceptionID < result[j].ExceptionID })
	return result
}

// ── Mock ShiftRequestRepository ──

type mockShiftRequestRepo struct {
	ids      *idGen
	requests map[string]*model.ShiftRequest
}

func newMockShiftRequestRepo(ids *idGen) *mockShiftRequestRepo {
	return &mockShiftRequestRepo{ids: ids, requests: make(map[string]*model.ShiftRequest)}
}

func isActiveStatus(s model.ShiftRequestStatus) bool {
	for _, v := range model.ActiveRequestStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (m *mockShiftRequestRepo) Create(_ context.Context, req *model.ShiftRequest) error {
	if req.ShiftRequestID == "" {
		req.ShiftRequestID = m.ids.next("req")
	}
	if req.Version == 0 {
		req.Version = 1
	}
	for _, other := range m.requests {
		if other.ShiftID == req.ShiftID && isActiveStatus(other.Status) && isActiveStatus(req.Status) {
			return pkgerrors.ErrDuplicateKey
		}
	}
	cp := *req
	m.requests[req.ShiftRequestID] = &cp
	return nil
}

func (m *mockShiftRequestRepo) GetByID(_ context.Context, id string) (*model.ShiftRequest, error) {
	if r, ok := m.requests[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockShiftRequestRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.ShiftRequest, error) {
	return m.GetByID(ctx, id)
}

func (m *mockShiftRequestRepo) GetActiveByShift(_ context.Context, shiftID string) (*model.ShiftRequest, error) {
	for _, r := range m.requests {
		if r.ShiftID == shiftID && isActiveStatus(r.Status) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockShiftRequestRepo) ListActiveBefore(_ context.Context, date string) ([]model.ShiftRequest, error) {
	var result []model.ShiftRequest
	for _, r := range m.requests {
		if isActiveStatus(r.Status) && r.ShiftDate.Format("2006-01-02") < date {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ShiftRequestID < result[j].ShiftRequestID })
	return result, nil
}

func (m *mockShiftRequestRepo) ListByStore(_ context.Context, storeID string, status model.ShiftRequestStatus) ([]model.ShiftRequest, error) {
	var result []model.ShiftRequest
	for _, r := range m.requests {
		if r.StoreID == storeID && (status == "" || r.Status == status) {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ShiftRequestID < result[j].ShiftRequestID })
	return result, nil
}

func (m *mockShiftRequestRepo) Update(_ context.Context, req *model.ShiftRequest) error {
	cur, ok := m.requests[req.ShiftRequestID]
	if !ok || cur.Version != req.Version {
		return pkgerrors.ErrOptimisticLock
	}
	req.Version++
	cp := *req
	cp.Shift = nil
	m.requests[req.ShiftRequestID] = &cp
	return nil
}

// ── Mock RepeatingShiftRepository ──

type mockRepeatingShiftRepo struct {
	ids       *idGen
	templates map[string]*model.RepeatingShift
}

func newMockRepeatingShiftRepo(ids *idGen) *mockRepeatingShiftRepo {
	return &mockRepeatingShiftRepo{ids: ids, templates: make(map[string]*model.RepeatingShift)}
}

func (m *mockRepeatingShiftRepo) Create(_ context.Context, rs *model.RepeatingShift) error {
	if rs.RepeatingShiftID == "" {
		rs.RepeatingShiftID = m.ids.next("rs")
	}
	cp := *rs
	m.templates[rs.RepeatingShiftID] = &cp
	return nil
}

func (m *mockRepeatingShiftRepo) GetByID(_ context.Context, id string) (*model.RepeatingShift, error) {
	if rs, ok := m.templates[id]; ok {
		cp := *rs
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRepeatingShiftRepo) ListByStore(_ context.Context, storeID string) ([]model.RepeatingShift, error) {
	var result []model.RepeatingShift
	for _, rs := range m.templates {
		if rs.StoreID == storeID {
			result = append(result, *rs)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RepeatingShiftID < result[j].RepeatingShiftID })
	return result, nil
}

func (m *mockRepeatingShiftRepo) Delete(_ context.Context, id string) error {
	delete(m.templates, id)
	return nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct {
	ids   *idGen
	items []model.Notification
}

func newMockNotificationRepo(ids *idGen) *mockNotificationRepo {
	return &mockNotificationRepo{ids: ids}
}

func (m *mockNotificationRepo) BatchCreate(_ context.Context, list []model.Notification) error {
	for _, n := range list {
		if n.NotificationID == "" {
			n.NotificationID = m.ids.next("ntf")
		}
		m.items = append(m.items, n)
	}
	return nil
}

func (m *mockNotificationRepo) ListByEmployee(_ context.Context, employeeID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	var result []model.Notification
	for i := len(m.items) - 1; i >= 0 && len(result) < limit; i-- {
		n := m.items[i]
		if n.EmployeeID != employeeID || (unreadOnly && n.IsRead) {
			continue
		}
		result = append(result, n)
	}
	return result, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, employeeID, notificationID string) error {
	for i := range m.items {
		if m.items[i].NotificationID == notificationID && m.items[i].EmployeeID == employeeID {
			m.items[i].IsRead = true
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// ── Mock Authority ──

type mockAuthority struct {
	members *mockMembershipRepo
}

func (a *mockAuthority) IsAssociated(ctx context.Context, employeeID, storeID string) (bool, error) {
	_, err := a.members.Get(ctx, employeeID, storeID)
	return err == nil, nil
}

func (a *mockAuthority) IsManager(ctx context.Context, employeeID, storeID string) (bool, error) {
	sm, err := a.members.Get(ctx, employeeID, storeID)
	return err == nil && sm.IsManager, nil
}

// ── 捕获型 Notifier ──

type captureNotifier struct {
	notices []Notice
}

func (c *captureNotifier) Notify(_ context.Context, n Notice) {
	c.notices = append(c.notices, n)
}

func (c *captureNotifier) countType(t string) int {
	n := 0
	for _, notice := range c.notices {
		if notice.Type == t {
			n++
		}
	}
	return n
}

// ── Mock HolidayCalendar ──

type stubHolidays struct {
	holidays map[string]bool
	err      error
	calls    int
}

func (h *stubHolidays) IsPublicHoliday(_ context.Context, date time.Time) (bool, error) {
	h.calls++
	if h.err != nil {
		return false, h.err
	}
	return h.holidays[date.Format("2006-01-02")], nil
}

// ── 测试环境聚合 ──

type testEnv struct {
	ids        *idGen
	store      *mockStoreRepo
	employee   *mockEmployeeRepo
	membership *mockMembershipRepo
	activity   *mockActivityRepo
	shift      *mockShiftRepo
	exception  *mockExceptionRepo
	request    *mockShiftRequestRepo
	repeating  *mockRepeatingShiftRepo
	ntf        *mockNotificationRepo
	auth       *mockAuthority
	notifier   *captureNotifier
	rules      *Rules
	clock      *fakeClock
}

func newTestEnv(rules *Rules, now time.Time) *testEnv {
	ids := &idGen{}
	members := newMockMembershipRepo()
	return &testEnv{
		ids:        ids,
		store:      newMockStoreRepo(),
		employee:   newMockEmployeeRepo(),
		membership: members,
		activity:   newMockActivityRepo(ids),
		shift:      newMockShiftRepo(ids),
		exception:  newMockExceptionRepo(ids),
		request:    newMockShiftRequestRepo(ids),
		repeating:  newMockRepeatingShiftRepo(ids),
		ntf:        newMockNotificationRepo(ids),
		auth:       &mockAuthority{members: members},
		notifier:   &captureNotifier{},
		rules:      rules,
		clock:      &fakeClock{now: now},
	}
}

func (e *testEnv) repository() *repository.Repository {
	return &repository.Repository{
		Store:          e.store,
		Employee:       e.employee,
		Membership:     e.membership,
		Activity:       e.activity,
		Shift:          e.shift,
		Exception:      e.exception,
		ShiftRequest:   e.request,
		RepeatingShift: e.repeating,
		Notification:   e.ntf,
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
