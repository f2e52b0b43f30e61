// Package mocks provides gomock implementations of the job package's
// collaborator interfaces.
//
// To regenerate after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	store := mocks.NewMockStore(ctrl)
//	store.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=store_mock.go scholarsource/internal/job Store
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=lister_mock.go scholarsource/internal/job Lister
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=engine_mock.go scholarsource/internal/job Engine
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=notifier_mock.go scholarsource/internal/job Notifier
