package repose_test

import (
	"testing"

	"github.com/sre-norns/repose/pkg/apitest"
	"github.com/sre-norns/repose/pkg/repose"
	"github.com/stretchr/testify/require"
)

type testKinds struct {
	Post    *repose.Kind
	Profile *repose.Kind
	User    *repose.Kind
	Group   *repose.Kind
}

func newTestKinds() testKinds {
	post := repose.NewKind("Post").
		Endpoint("/user/{user_id}/post/{post_id}").
		EndpointList("/user/{user_id}/post").
		Field("id", repose.Integer()).
		Field("content", repose.String()).
		MustBuild()

	profile := repose.NewKind("Profile").
		Field("email", repose.String(repose.Tag("email"))).
		Field("age", repose.Integer(repose.Range(0, 150))).
		MustBuild()

	user := repose.NewKind("User").
		Endpoint("/user/{user_id}").
		EndpointList("/user").
		Field("id", repose.Integer()).
		Field("name", repose.String()).
		Field("posts", repose.ManagedCollection(post)).
		Field("profile", repose.Embedded(profile)).
		Manager("with_posts", repose.WithFilter(func(r *repose.Resource) bool {
			posts, err := r.Collection("posts")
			return err == nil && posts != nil && posts.Len() > 0
		})).
		MustBuild()

	group := repose.NewKind("Group").
		Endpoint("/group/{group_id}").
		Field("id", repose.Integer()).
		Field("users", repose.ManagedIDListCollection(user)).
		MustBuild()

	return testKinds{
		Post:    post,
		Profile: profile,
		User:    user,
		Group:   group,
	}
}

// newTestApi registers test kinds with an Api backed by a scripted client
func newTestApi(t *testing.T) (testKinds, *apitest.Client) {
	t.Helper()

	kinds := newTestKinds()
	client := apitest.NewClient()
	err := repose.NewApi(client).Register(kinds.User, kinds.Group)
	require.NoError(t, err)

	return kinds, client
}

func userData() map[string]any {
	return map[string]any{
		"id":   1,
		"name": "Test User",
		"profile": map[string]any{
			"email": "test@example.com",
			"age":   42,
		},
		"posts": []any{
			map[string]any{
				"id":      10,
				"content": "First Comment",
			},
			map[string]any{
				"id":      11,
				"content": "Second Comment",
			},
		},
	}
}

func userDataWithID(id int) map[string]any {
	data := userData()
	data["id"] = id
	return data
}
