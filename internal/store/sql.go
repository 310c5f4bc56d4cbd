package store

import (
	"github.com/huandu/go-sqlbuilder"
)

func newSelect() *sqlbuilder.SelectBuilder {
	return sqlbuilder.SQLite.NewSelectBuilder()
}

func newInsert(table string) *sqlbuilder.InsertBuilder {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto(table)
	return ib
}

func newUpdate(table string) *sqlbuilder.UpdateBuilder {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update(table)
	return ub
}
