// Package session is the session-style API over the user store: a Factory
// opens short-lived Sessions, each Session runs at most one Transaction at a
// time, and all entity operations happen inside that transaction.
//
// Typical use:
//
//	factory := session.NewFactory(manager)
//	s, err := factory.OpenSession()
//	...
//	defer s.Close()
//	tx, err := s.BeginTransaction(ctx)
//	...
//	user, err := s.Save(ctx, model.User{Email: "jon@snow.com", Password: "ghost"})
//	...
//	err = tx.Commit()
package session
