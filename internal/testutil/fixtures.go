package testutil

import (
	"testing"

	"github.com/scopekit/reuse"
	"github.com/stretchr/testify/assert"
)

// ServiceFixture represents a test fixture for services
type ServiceFixture struct {
	Name        string
	Constructor any
	Reuse       reuse.Reuse
	Options     []reuse.AddOption
}

// CommonFixtures provides common service configurations for testing
var CommonFixtures = struct {
	Logger       ServiceFixture
	Database     ServiceFixture
	Cache        ServiceFixture
	Service      ServiceFixture
	KeyedService func(key string) ServiceFixture
}{
	Logger: ServiceFixture{
		Name:        "Logger",
		Constructor: NewTestLogger,
		Reuse:       reuse.Singleton,
	},
	Database: ServiceFixture{
		Name:        "Database",
		Constructor: NewTestDatabase,
		Reuse:       reuse.Singleton,
	},
	Cache: ServiceFixture{
		Name:        "Cache",
		Constructor: NewTestCache,
		Reuse:       reuse.Singleton,
	},
	Service: ServiceFixture{
		Name:        "Service",
		Constructor: NewTestServiceWithDeps,
		Reuse:       reuse.Scoped,
	},
	KeyedService: func(key string) ServiceFixture {
		return ServiceFixture{
			Name:        "KeyedService",
			Constructor: NewTestService,
			Reuse:       reuse.Singleton,
			Options:     []reuse.AddOption{reuse.Key(key)},
		}
	},
}

// BuildFixture adds a fixture to a service collection
func BuildFixture(t *testing.T, collection reuse.Collection, fixture ServiceFixture) {
	t.Helper()

	if err := collection.Add(fixture.Constructor, fixture.Reuse, fixture.Options...); err != nil {
		t.Fatalf("failed to add %s: %v", fixture.Name, err)
	}
}

// SetupBasicServices adds common test services to a collection
func SetupBasicServices(t *testing.T, collection reuse.Collection) {
	t.Helper()

	BuildFixture(t, collection, CommonFixtures.Logger)
	BuildFixture(t, collection, CommonFixtures.Database)
	BuildFixture(t, collection, CommonFixtures.Cache)
}

// SetupCompleteServices adds all common services including dependent ones
func SetupCompleteServices(t *testing.T, collection reuse.Collection) {
	t.Helper()

	SetupBasicServices(t, collection)
	BuildFixture(t, collection, CommonFixtures.Service)
}

// CreateProviderWithBasicServices creates a provider with basic test services
func CreateProviderWithBasicServices(t *testing.T) *reuse.Provider {
	t.Helper()

	builder := NewCollectionBuilder(t)
	SetupBasicServices(t, builder.Build())
	return builder.BuildProvider()
}

// CreateProviderWithCompleteServices creates a provider with all test services
func CreateProviderWithCompleteServices(t *testing.T) *reuse.Provider {
	t.Helper()

	builder := NewCollectionBuilder(t)
	SetupCompleteServices(t, builder.Build())
	return builder.BuildProvider()
}

// TestScenario represents a test scenario configuration
type TestScenario struct {
	Name     string
	Setup    func(t *testing.T) *reuse.Provider
	Validate func(t *testing.T, provider *reuse.Provider)
}

// RunTestScenarios executes a set of test scenarios
func RunTestScenarios(t *testing.T, scenarios []TestScenario) {
	t.Helper()

	for _, scenario := range scenarios {
		scenario := scenario
		t.Run(scenario.Name, func(t *testing.T) {
			t.Parallel()

			provider := scenario.Setup(t)
			scenario.Validate(t, provider)
		})
	}
}

// ErrorTestCase represents a test case for error scenarios
type ErrorTestCase struct {
	Name      string
	Setup     func(t *testing.T) *reuse.Provider
	Action    func(provider *reuse.Provider) error
	WantError error
	CheckErr  func(t *testing.T, err error)
}

// RunErrorTestCases executes error test cases
func RunErrorTestCases(t *testing.T, cases []ErrorTestCase) {
	t.Helper()

	for _, tc := range cases {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()

			provider := tc.Setup(t)
			err := tc.Action(provider)

			if tc.WantError != nil {
				RequireError(t, err)
				assert.ErrorIs(t, err, tc.WantError)
			}

			if tc.CheckErr != nil {
				tc.CheckErr(t, err)
			}
		})
	}
}
