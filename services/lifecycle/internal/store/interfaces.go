package store

import (
	"github.com/nexuscrm/nexus/pkg/authn"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/idempotency"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/implementation"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/platform"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/readiness"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/scope"
	"github.com/nexuscrm/nexus/services/lifecycle/internal/transition"
)

var (
	_ transition.Store               = (*Store)(nil)
	_ scope.Store                    = (*Store)(nil)
	_ implementation.Store           = (*Store)(nil)
	_ platform.Catalog               = (*Store)(nil)
	_ readiness.ImplementationReader = (*Store)(nil)
	_ authn.CredentialStore          = (*Store)(nil)
	_ authn.FailureRecorder          = (*Store)(nil)
	_ idempotency.Store              = (*Store)(nil)
	_ transition.Tx                  = (*txStore)(nil)
	_ scope.Tx                       = (*txStore)(nil)
	_ implementation.Tx              = (*txStore)(nil)

	_ transition.Store      = (*Memory)(nil)
	_ scope.Store           = (*Memory)(nil)
	_ implementation.Store  = (*Memory)(nil)
	_ platform.Catalog      = (*Memory)(nil)
	_ authn.CredentialStore = (*Memory)(nil)
	_ authn.FailureRecorder = (*Memory)(nil)
	_ idempotency.Store     = (*Memory)(nil)
	_ transition.Tx         = (*memTx)(nil)
	_ scope.Tx              = (*memTx)(nil)
	_ implementation.Tx     = (*memTx)(nil)
)
