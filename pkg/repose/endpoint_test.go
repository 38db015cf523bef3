package repose_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"testing"

	"github.com/sre-norns/repose/pkg/repose"
	"github.com/stretchr/testify/require"
)

func TestFormatEndpoint(t *testing.T) {
	testCases := map[string]struct {
		template  string
		values    map[string]any
		expect    string
		expectErr error
	}{
		"no-placeholders": {
			template: "/user",
			expect:   "/user",
		},
		"simple": {
			template: "/user/{id}",
			values:   map[string]any{"id": 1},
			expect:   "/user/1",
		},
		"several": {
			template: "/user/{user_id}/post/{id}",
			values:   map[string]any{"user_id": int64(1), "id": json.Number("10")},
			expect:   "/user/1/post/10",
		},
		"string-and-float": {
			template: "/repos/{owner}/{name}?v={version}",
			values:   map[string]any{"owner": "octocat", "name": "hello", "version": 1.5},
			expect:   "/repos/octocat/hello?v=1.5",
		},
		"escaped-braces": {
			template: "/search/{{literal}}/{q}",
			values:   map[string]any{"q": "x"},
			expect:   "/search/{literal}/x",
		},
		"extra-values": {
			template: "/user/{id}",
			values:   map[string]any{"id": 1, "name": "ignored"},
			expect:   "/user/1",
		},
		"missing": {
			template:  "/user/{user_id}/post/{id}",
			values:    map[string]any{"id": 10},
			expectErr: repose.ErrMissingPlaceholder,
		},
		"nil-value": {
			template:  "/user/{id}",
			values:    map[string]any{"id": nil},
			expectErr: repose.ErrMissingPlaceholder,
		},
		"unclosed": {
			template:  "/user/{id",
			expectErr: repose.ErrMalformedTemplate,
		},
		"nested": {
			template:  "/user/{id{x}}",
			expectErr: repose.ErrMalformedTemplate,
		},
		"single-closing": {
			template:  "/user/id}",
			expectErr: repose.ErrMalformedTemplate,
		},
		"empty-placeholder": {
			template:  "/user/{}",
			expectErr: repose.ErrMalformedTemplate,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(fmt.Sprintf("format:%s", name), func(t *testing.T) {
			got, err := repose.FormatEndpoint(test.template, test.values)
			if test.expectErr != nil {
				require.ErrorIs(t, err, test.expectErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.expect, got)
		})
	}
}

func TestPlaceholders(t *testing.T) {
	names, err := repose.Placeholders("/user/{user_id}/post/{{x}}/{id}")
	require.NoError(t, err)
	require.Equal(t, []string{"user_id", "id"}, names)

	_, err = repose.Placeholders("/user/{")
	require.ErrorIs(t, err, repose.ErrMalformedTemplate)
}

func TestMakeEndpoint_ParentChain(t *testing.T) {
	post := repose.NewKind("Post").
		Endpoint("/user/{user_id}/post/{id}").
		Field("id", repose.Integer()).
		MustBuild()
	user := repose.NewKind("User").
		Endpoint("/user/{id}").
		EndpointList("/user").
		Field("id", repose.Integer()).
		Field("posts", repose.ManagedCollection(post)).
		MustBuild()

	root, err := user.Decode(map[string]any{
		"id":    1,
		"posts": []any{map[string]any{"id": 10}},
	})
	require.NoError(t, err)

	endpoint, err := repose.MakeEndpoint(root)
	require.NoError(t, err)
	require.Equal(t, "/user/1", endpoint)

	listEndpoint, err := repose.MakeListEndpoint(root)
	require.NoError(t, err)
	require.Equal(t, "/user", listEndpoint)

	posts, err := root.Collection("posts")
	require.NoError(t, err)
	child, err := posts.At(context.Background(), 0)
	require.NoError(t, err)

	endpoint, err = repose.MakeEndpoint(child)
	require.NoError(t, err)
	require.Equal(t, "/user/1/post/10", endpoint)

	_, err = repose.MakeListEndpoint(child)
	require.ErrorIs(t, err, repose.ErrNoEndpoint)

	orphan, err := post.New(map[string]any{"id": 11})
	require.NoError(t, err)
	_, err = repose.MakeEndpoint(orphan)
	require.ErrorIs(t, err, repose.ErrMissingPlaceholder)

	runtime.KeepAlive(root)
}

func TestMakeEndpoint_DeepNesting(t *testing.T) {
	member := repose.NewKind("Member").
		Endpoint("/org/{org_name}/team/{team_id}/member/{login}").
		Field("login", repose.String()).
		MustBuild()
	team := repose.NewKind("Team").
		Field("id", repose.Integer()).
		Field("name", repose.String()).
		Field("lead", repose.Embedded(member)).
		MustBuild()
	org := repose.NewKind("Org").
		Field("name", repose.String()).
		Field("teams", repose.ManagedCollection(team)).
		MustBuild()

	root, err := org.Decode(map[string]any{
		"name": "sre-norns",
		"teams": []any{
			map[string]any{
				"id":   3,
				"name": "core",
				"lead": map[string]any{"login": "octocat"},
			},
		},
	})
	require.NoError(t, err)

	teams, err := root.Collection("teams")
	require.NoError(t, err)
	first, err := teams.At(context.Background(), 0)
	require.NoError(t, err)
	lead, err := first.Embedded("lead")
	require.NoError(t, err)

	endpoint, err := repose.MakeEndpoint(lead)
	require.NoError(t, err)
	require.Equal(t, "/org/sre-norns/team/3/member/octocat", endpoint)

	runtime.KeepAlive(root)
}

func TestMakeEndpoint_NearestAncestorWins(t *testing.T) {
	leaf := repose.NewKind("Leaf").
		Endpoint("/node/{node_id}/leaf/{id}").
		Field("id", repose.Integer()).
		MustBuild()
	inner := repose.NewKind("Node").
		Field("id", repose.Integer()).
		Field("leaves", repose.ManagedCollection(leaf)).
		MustBuild()
	// A kind with the same name as its descendant
	outer := repose.NewKind("Node").
		Field("id", repose.Integer()).
		Field("children", repose.ManagedCollection(inner)).
		MustBuild()

	root, err := outer.Decode(map[string]any{
		"id": 1,
		"children": []any{
			map[string]any{
				"id":     2,
				"leaves": []any{map[string]any{"id": 3}},
			},
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	children, err := root.Collection("children")
	require.NoError(t, err)
	child, err := children.At(ctx, 0)
	require.NoError(t, err)
	leaves, err := child.Collection("leaves")
	require.NoError(t, err)
	target, err := leaves.At(ctx, 0)
	require.NoError(t, err)

	endpoint, err := repose.MakeEndpoint(target)
	require.NoError(t, err)
	require.Equal(t, "/node/2/leaf/3", endpoint)

	runtime.KeepAlive(root)
}

func TestFromEndpoint(t *testing.T) {
	_, client := newTestApi(t)
	setting := repose.NewKind("Setting").
		Endpoint("/user/{user_id}/setting/{key}").
		Field("key", repose.String(), repose.FromEndpoint("key")).
		Field("value", repose.Raw()).
		MustBuild()
	require.NoError(t, repose.NewApi(client).Register(setting))
	ctx := context.Background()

	client.AddResponse(http.MethodGet, "/user/1/setting/theme", map[string]any{"value": "dark"})

	resource, err := setting.Objects().Get(ctx, repose.Params{"user_id": 1, "key": "theme"})
	require.NoError(t, err)

	key, ok := resource.GetString("key")
	require.True(t, ok)
	require.Equal(t, "theme", key)

	endpoint, err := repose.MakeEndpoint(resource)
	require.NoError(t, err)
	require.Equal(t, "/user/1/setting/theme", endpoint)

	require.NoError(t, resource.Set("value", "light"))
	client.AssertCall(t, http.MethodPut, "/user/1/setting/theme", map[string]any{"value": "light"}, nil, func() {
		require.NoError(t, resource.Save(ctx))
	})
}
