package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"loan-ledger/internal/core/database"
	"loan-ledger/internal/domain"
	"loan-ledger/pkg/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewGorm(database.Opts{Driver: "sqlite", DSN: "file::memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, Models(), SchemaExtras("sqlite")...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	ctx       context.Context
	db        *gorm.DB
	catalogue *CatalogueRepo
	users     *UserRepo
	loans     *LoanRepo
	tx        *TxManager
}

func newFixture(t *testing.T) *fixture {
	db := newTestDB(t)
	return &fixture{
		ctx:       context.Background(),
		db:        db,
		catalogue: NewCatalogueRepo(db),
		users:     NewUserRepo(db),
		loans:     NewLoanRepo(db),
		tx:        NewTxManager(db),
	}
}

func (f *fixture) category(t *testing.T, name string, super *uuid.UUID) domain.Category {
	t.Helper()
	c := domain.Category{ID: utils.NewID(), Name: name, Supercategory: super}
	require.NoError(t, f.catalogue.CreateCategory(f.ctx, &c))
	return c
}

func (f *fixture) product(t *testing.T, name string, c domain.Category) domain.Product {
	t.Helper()
	p := domain.Product{ID: utils.NewID(), Name: name, Category: c}
	require.NoError(t, f.catalogue.CreateProduct(f.ctx, &p))
	return p
}

func (f *fixture) instance(t *testing.T, ident string, p domain.Product) domain.Instance {
	t.Helper()
	in := domain.Instance{ID: utils.NewID(), Identifier: ident, Product: p}
	require.NoError(t, f.catalogue.CreateInstance(f.ctx, &in))
	return in
}

func (f *fixture) user(t *testing.T, name string) domain.User {
	t.Helper()
	u := domain.User{ID: utils.NewID(), Name: name}
	require.NoError(t, f.users.Create(f.ctx, &u))
	return u
}

func (f *fixture) loan(t *testing.T, u domain.User, start, end time.Time, accepted bool, ins ...domain.Instance) uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, len(ins))
	for _, in := range ins {
		ids = append(ids, in.ID)
	}
	nl := domain.NewLoan{ID: utils.NewID(), UserID: u.ID, Start: start, End: end, Accepted: accepted, InstanceIDs: ids}
	require.NoError(t, f.tx.InTx(f.ctx, func(ctx context.Context) error { return f.loans.Create(ctx, nl) }))
	return nl.ID
}

func TestInstant_RoundTripKeepsOffset(t *testing.T) {
	zone := time.FixedZone("", 3*3600)
	in := time.Date(2024, 6, 1, 12, 30, 15, 123456789, zone)

	s, off := encodeInstant(in)
	assert.Equal(t, "2024-06-01T09:30:15.123456789Z", s)
	assert.Equal(t, 3*3600, off)

	out, err := decodeInstant(s, off)
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
	_, gotOff := out.Zone()
	assert.Equal(t, 3*3600, gotOff)

	_, err = decodeInstant("yesterday", 0)
	assert.Error(t, err)
}

func TestLoanRepo_QueryKeepsOriginalOffset(t *testing.T) {
	f := newFixture(t)
	root := f.category(t, "Catalogue", nil)
	in := f.instance(t, "#1", f.product(t, "Canon R6", root))
	alice := f.user(t, "Alice")

	helsinki := time.FixedZone("", 3*3600)
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, helsinki)
	end := time.Date(2024, 6, 3, 18, 0, 0, 0, time.FixedZone("", -4*3600))
	id := f.loan(t, alice, start, end, true, in)

	loans, err := f.loans.Query(f.ctx, domain.LoanFilter{LoanID: &id})
	require.NoError(t, err)
	require.Len(t, loans, 1)

	assert.True(t, start.Equal(loans[0].Start))
	_, off := loans[0].Start.Zone()
	assert.Equal(t, 10800, off)
	assert.Equal(t, "2024-06-01T09:00:00+03:00", loans[0].Start.Format(time.RFC3339))

	assert.True(t, end.Equal(loans[0].End))
	_, off = loans[0].End.Zone()
	assert.Equal(t, -4*3600, off)
}

func TestCatalogueRepo_DuplicateInsideTransactionKeepsTxUsable(t *testing.T) {
	f := newFixture(t)
	f.category(t, "Catalogue", nil)

	var child domain.Category
	err := f.tx.InTx(f.ctx, func(ctx context.Context) error {
		dupName := domain.Category{ID: utils.NewID(), Name: "Catalogue"}
		err := f.catalogue.CreateCategory(ctx, &dupName)
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.NotErrorIs(t, err, domain.ErrValidation)

		secondRoot := domain.Category{ID: utils.NewID(), Name: "Other"}
		assert.ErrorIs(t, f.catalogue.CreateCategory(ctx, &secondRoot), domain.ErrSupercategoryRequired)

		// 失败的插入只回滚到保存点，事务里后续写入照常提交
		root, err := f.catalogue.FindRootCategory(ctx)
		if err != nil {
			return err
		}
		child = domain.Category{ID: utils.NewID(), Name: "Cameras", Supercategory: &root.ID}
		return f.catalogue.CreateCategory(ctx, &child)
	})
	require.NoError(t, err)

	got, err := f.catalogue.FindCategoryByName(f.ctx, "Cameras")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, child.ID, got.ID)
}

func TestInstant_TextOrderMatchesTimeOrder(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	earlier := base.In(time.FixedZone("", -5*3600))
	later := base.Add(time.Nanosecond).In(time.FixedZone("", 9*3600))
	assert.Less(t, encodeBound(earlier), encodeBound(later))
}

func TestCatalogueRepo_UniquenessAndReferences(t *testing.T) {
	f := newFixture(t)
	root := f.category(t, "Catalogue", nil)

	// 单根索引
	second := domain.Category{ID: utils.NewID(), Name: "Other"}
	err := f.catalogue.CreateCategory(f.ctx, &second)
	assert.ErrorIs(t, err, domain.ErrSupercategoryRequired)

	dup := domain.Category{ID: utils.NewID(), Name: "Catalogue", Supercategory: &root.ID}
	assert.ErrorIs(t, f.catalogue.CreateCategory(f.ctx, &dup), domain.ErrConflict)

	ghost := utils.NewID()
	orphan := domain.Category{ID: utils.NewID(), Name: "Orphan", Supercategory: &ghost}
	assert.ErrorIs(t, f.catalogue.CreateCategory(f.ctx, &orphan), domain.ErrNotFound)

	cameras := f.category(t, "Cameras", &root.ID)
	p := f.product(t, "Canon R6", cameras)
	f.instance(t, "#1", p)

	again := domain.Instance{ID: utils.NewID(), Identifier: "#1", Product: p}
	assert.ErrorIs(t, f.catalogue.CreateInstance(f.ctx, &again), domain.ErrConflict)

	p2 := f.product(t, "Nikon Z6", cameras)
	f.instance(t, "#1", p2)

	got, err := f.catalogue.FindInstanceByID(f.ctx, again.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCatalogueRepo_ListsKeepInsertionOrder(t *testing.T) {
	f := newFixture(t)
	root := f.category(t, "Catalogue", nil)
	names := []string{"Zoom", "Audio", "Lenses", "Cameras"}
	for _, n := range names {
		f.category(t, n, &root.ID)
	}

	children, err := f.catalogue.ListCategories(f.ctx, &root.ID)
	require.NoError(t, err)
	require.Len(t, children, len(names))
	for i, c := range children {
		assert.Equal(t, names[i], c.Name)
		assert.Equal(t, root.ID, *c.Supercategory)
	}

	all, err := f.catalogue.ListCategories(f.ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, len(names)+1)
	assert.Equal(t, "Catalogue", all[0].Name)
}

func TestCatalogueRepo_DeleteBlockedByForeignKey(t *testing.T) {
	f := newFixture(t)
	root := f.category(t, "Catalogue", nil)
	p := f.product(t, "Canon R6", root)
	f.instance(t, "#1", p)

	assert.ErrorIs(t, f.catalogue.DeleteProduct(f.ctx, p.ID), domain.ErrConflict)
	assert.ErrorIs(t, f.catalogue.DeleteCategory(f.ctx, root.ID), domain.ErrConflict)
	assert.ErrorIs(t, f.catalogue.DeleteCategory(f.ctx, utils.NewID()), domain.ErrNotFound)

	n, err := f.catalogue.CountCategoryDependents(f.ctx, root.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestUserRepo(t *testing.T) {
	f := newFixture(t)
	first := f.user(t, "Alice")
	f.user(t, "Bob")
	f.user(t, "Alice")

	u, err := f.users.FindByName(f.ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, u.ID)

	none, err := f.users.FindByID(f.ctx, utils.NewID())
	require.NoError(t, err)
	assert.Nil(t, none)

	all, err := f.users.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Alice", "Bob", "Alice"}, []string{all[0].Name, all[1].Name, all[2].Name})

	require.NoError(t, f.users.Delete(f.ctx, first.ID))
	assert.ErrorIs(t, f.users.Delete(f.ctx, first.ID), domain.ErrNotFound)
}

type loanWorld struct {
	*fixture
	cameras, lenses domain.Category
	r6, rf50        domain.Product
	r6a, r6b, lens  domain.Instance
	alice, bob      domain.User
	t0              time.Time
}

func newLoanWorld(t *testing.T) *loanWorld {
	f := newFixture(t)
	w := &loanWorld{fixture: f}
	root := f.category(t, "Catalogue", nil)
	w.cameras = f.category(t, "Cameras", &root.ID)
	w.lenses = f.category(t, "Lenses", &root.ID)
	w.r6 = f.product(t, "Canon R6", w.cameras)
	w.rf50 = f.product(t, "Canon RF 50mm", w.lenses)
	w.r6a = f.instance(t, "#1", w.r6)
	w.r6b = f.instance(t, "#2", w.r6)
	w.lens = f.instance(t, "#1", w.rf50)
	w.alice = f.user(t, "Alice")
	w.bob = f.user(t, "Bob")
	w.t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("", 2*3600))
	return w
}

func TestLoanRepo_QueryFoldsMultiInstanceLoans(t *testing.T) {
	w := newLoanWorld(t)
	day := 24 * time.Hour
	id := w.loan(t, w.alice, w.t0, w.t0.Add(3*day), true, w.r6b, w.lens, w.r6a)

	loans, err := w.loans.Query(w.ctx, domain.LoanFilter{})
	require.NoError(t, err)
	require.Len(t, loans, 1)

	l := loans[0]
	assert.Equal(t, id, l.ID)
	assert.Equal(t, "Alice", l.User.Name)
	assert.True(t, l.Accepted)
	assert.True(t, w.t0.Equal(l.Start))
	_, off := l.Start.Zone()
	assert.Equal(t, 2*3600, off)

	require.Len(t, l.Instances, 3)
	assert.Equal(t, w.r6b.ID, l.Instances[0].ID)
	assert.Equal(t, w.lens.ID, l.Instances[1].ID)
	assert.Equal(t, w.r6a.ID, l.Instances[2].ID)
	assert.Equal(t, "Canon RF 50mm", l.Instances[1].Product.Name)
	assert.Equal(t, "Lenses", l.Instances[1].Product.Category.Name)

	// 按实例过滤时仍返回借用的全部实例
	loans, err = w.loans.Query(w.ctx, domain.LoanFilter{InstanceID: &w.lens.ID})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Len(t, loans[0].Instances, 3)
}

func TestLoanRepo_FilterComposition(t *testing.T) {
	w := newLoanWorld(t)
	day := 24 * time.Hour
	l1 := w.loan(t, w.alice, w.t0, w.t0.Add(2*day), true, w.r6a)
	l2 := w.loan(t, w.bob, w.t0.Add(5*day), w.t0.Add(6*day), true, w.lens)
	l3 := w.loan(t, w.bob, w.t0.Add(10*day), w.t0.Add(30*day), false, w.r6b)

	yes, no := true, false
	at := func(d time.Duration) *time.Time { return ptr(w.t0.Add(d)) }

	cases := []struct {
		name   string
		filter domain.LoanFilter
		want   []uuid.UUID
	}{
		{"empty", domain.LoanFilter{}, []uuid.UUID{l1, l2, l3}},
		{"loan id", domain.LoanFilter{LoanID: &l2}, []uuid.UUID{l2}},
		{"user", domain.LoanFilter{UserID: &w.alice.ID}, []uuid.UUID{l1}},
		{"product", domain.LoanFilter{ProductID: &w.r6.ID}, []uuid.UUID{l1, l3}},
		{"category", domain.LoanFilter{CategoryID: &w.lenses.ID}, []uuid.UUID{l2}},
		{"instance", domain.LoanFilter{InstanceID: &w.r6b.ID}, []uuid.UUID{l3}},
		{"accepted only", domain.LoanFilter{AcceptedOnly: &yes}, []uuid.UUID{l1, l2}},
		{"accepted false is no constraint", domain.LoanFilter{AcceptedOnly: &no}, []uuid.UUID{l1, l2, l3}},
		{"user and product", domain.LoanFilter{UserID: &w.bob.ID, ProductID: &w.r6.ID}, []uuid.UUID{l3}},
		{"range touching end", domain.LoanFilter{RangeStart: at(2 * day), RangeEnd: at(3 * day)}, []uuid.UUID{l1}},
		{"range touching start", domain.LoanFilter{RangeStart: at(4 * day), RangeEnd: at(5 * day)}, []uuid.UUID{l2}},
		{"range gap", domain.LoanFilter{RangeStart: at(7 * day), RangeEnd: at(9 * day)}, nil},
		{"open start", domain.LoanFilter{RangeStart: at(6 * day)}, []uuid.UUID{l2, l3}},
		{"open end", domain.LoanFilter{RangeEnd: at(day)}, []uuid.UUID{l1}},
		{"unknown user", domain.LoanFilter{UserID: ptr(utils.NewID())}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := w.loans.Query(w.ctx, tc.filter)
			require.NoError(t, err)
			ids := make([]uuid.UUID, 0, len(got))
			for _, l := range got {
				ids = append(ids, l.ID)
			}
			if tc.want == nil {
				assert.Empty(t, ids)
				return
			}
			assert.Equal(t, tc.want, ids)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestLoanRepo_RangeComparesInstantsAcrossOffsets(t *testing.T) {
	w := newLoanWorld(t)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	w.loan(t, w.alice, start, start.Add(time.Hour), true, w.r6a)

	// 同一时刻用 +05:00 表示
	bound := start.Add(time.Hour).In(time.FixedZone("", 5*3600))
	got, err := w.loans.Query(w.ctx, domain.LoanFilter{RangeStart: &bound})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	after := bound.Add(time.Nanosecond)
	got, err = w.loans.Query(w.ctx, domain.LoanFilter{RangeStart: &after})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoanRepo_CreateRollsBackOnBadInstance(t *testing.T) {
	w := newLoanWorld(t)
	nl := domain.NewLoan{
		ID:          utils.NewID(),
		UserID:      w.alice.ID,
		Start:       w.t0,
		End:         w.t0.Add(time.Hour),
		Accepted:    true,
		InstanceIDs: []uuid.UUID{w.r6a.ID, utils.NewID()},
	}
	err := w.tx.InTx(w.ctx, func(ctx context.Context) error { return w.loans.Create(ctx, nl) })
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	loans, err := w.loans.Query(w.ctx, domain.LoanFilter{})
	require.NoError(t, err)
	assert.Empty(t, loans)

	var n int64
	require.NoError(t, w.db.Model(&loanModel{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestLoanRepo_DanglingUserStillListed(t *testing.T) {
	w := newLoanWorld(t)
	w.loan(t, w.bob, w.t0, w.t0.Add(time.Hour), true, w.r6a)
	require.NoError(t, w.users.Delete(w.ctx, w.bob.ID))

	loans, err := w.loans.Query(w.ctx, domain.LoanFilter{UserID: &w.bob.ID})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, w.bob.ID, loans[0].User.ID)
	assert.Empty(t, loans[0].User.Name)
}

func TestLoanRepo_BuildQueryIsParameterised(t *testing.T) {
	w := newLoanWorld(t)
	sqlStr, args, err := w.loans.buildQuery(domain.LoanFilter{UserID: &w.alice.ID, RangeEnd: &w.t0})
	require.NoError(t, err)
	assert.NotContains(t, sqlStr, w.alice.ID.String())
	assert.Contains(t, args, w.alice.ID.String())
	assert.Contains(t, args, encodeBound(w.t0))
}
