package provisioner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/kubernetes/fake"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/poddle/compute/internal/cache"
	"github.com/poddle/compute/internal/cluster"
	"github.com/poddle/compute/internal/db"
	"github.com/poddle/compute/internal/domain"
)

type fakeSecretStore struct {
	writes map[string]map[string]string
}

func newFakeSecretStore() *fakeSecretStore {
	return &fakeSecretStore{writes: map[string]map[string]string{}}
}

func (f *fakeSecretStore) WriteSecrets(_ context.Context, path string, secrets map[string]string) error {
	f.writes[path] = secrets
	return nil
}

type fakeAcknowledger struct {
	acked, nacked, rejected int
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error    { f.acked++; return nil }
func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error { f.nacked++; return nil }
func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error  { f.rejected++; return nil }

func newTestProvisioner(t *testing.T) (*Provisioner, sqlmock.Sqlmock, *fake.Clientset, *fakeSecretStore) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	repo := db.NewRepository(gormDB)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mc := cache.New(rdb, 3)

	cs := fake.NewSimpleClientset()
	dyn := dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())
	gw := cluster.New(cs, dyn, cluster.Config{
		Domain:            "poddle.uz",
		ClusterIssuerName: "letsencrypt-prod",
		LabelSelector:     "managed-by=poddle",
	}, zap.NewNop())

	secrets := newFakeSecretStore()

	p := &Provisioner{repo: repo, cache: mc, gw: gw, secrets: secrets, log: zap.NewNop()}
	return p, mock, cs, secrets
}

func TestHandleCreate_HappyPath(t *testing.T) {
	p, mock, cs, _ := newTestProvisioner(t)
	ctx := context.Background()

	item := domain.CreateWorkItem{
		UserID:          uuid.New(),
		ProjectID:       uuid.New(),
		DeploymentID:    uuid.New(),
		Name:            "web",
		Image:           "nginx:1.25",
		Port:            8080,
		DesiredReplicas: 2,
		ResourceSpec:    domain.DefaultResourceSpec(),
		Subdomain:       "myapp",
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "deployments"`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "deployments" SET "status"`).
		WithArgs(string(domain.StatusProvisioning), sqlmock.AnyArg(), item.DeploymentID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "deployments" SET "status"`).
		WithArgs(string(domain.StatusStarting), sqlmock.AnyArg(), item.DeploymentID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.handleCreate(ctx, item)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	ns := domain.Namespace(item.UserID)
	name := domain.ResourceName(item.DeploymentID)
	_, err = cs.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
	require.NoError(t, err)
	_, err = cs.CoreV1().Services(ns).Get(ctx, name, metav1.GetOptions{})
	require.NoError(t, err)
}

func TestHandleCreate_IdempotentOnRetry(t *testing.T) {
	p, mock, _, _ := newTestProvisioner(t)
	ctx := context.Background()

	item := domain.CreateWorkItem{
		UserID: uuid.New(), ProjectID: uuid.New(), DeploymentID: uuid.New(),
		Name: "web", Image: "nginx:1.25", Port: 8080, DesiredReplicas: 1,
		ResourceSpec: domain.DefaultResourceSpec(),
	}

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "deployments"`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "deployments" SET "status"`).
			WithArgs(string(domain.StatusProvisioning), sqlmock.AnyArg(), item.DeploymentID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "deployments" SET "status"`).
			WithArgs(string(domain.StatusStarting), sqlmock.AnyArg(), item.DeploymentID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, p.handleCreate(ctx, item))
	require.NoError(t, p.handleCreate(ctx, item))
}

func TestHandleDelete_ToleratesMissingObjects(t *testing.T) {
	p, mock, _, _ := newTestProvisioner(t)
	ctx := context.Background()

	item := domain.DeleteWorkItem{
		UserID: uuid.New(), ProjectID: uuid.New(), DeploymentID: uuid.New(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "deployments"`).
		WithArgs(item.DeploymentID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := p.handleDelete(ctx, item)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleUpdate_PatchesReplicasOnly(t *testing.T) {
	p, mock, cs, _ := newTestProvisioner(t)
	ctx := context.Background()

	userID, projectID, deploymentID := uuid.New(), uuid.New(), uuid.New()
	ns := domain.Namespace(userID)
	name := domain.ResourceName(deploymentID)

	replicas := int32(1)
	_, err := cs.AppsV1().Deployments(ns).Create(ctx, &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"a": "b"}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"a": "b"}},
				Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "app", Image: "x"}}},
			},
		},
	}, metav1.CreateOptions{})
	require.NoError(t, err)

	desired := int32(4)
	item := domain.UpdateWorkItem{
		UserID: userID, ProjectID: projectID, DeploymentID: deploymentID,
		DesiredReplicas: &desired,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "deployments" SET`).
		WithArgs(int32(4), sqlmock.AnyArg(), deploymentID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.handleUpdate(ctx, item))

	got, err := cs.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
	require.NoError(t, err)
	require.Equal(t, int32(4), *got.Spec.Replicas)
}

func TestGiveUp_RecordsFailureAndAcks(t *testing.T) {
	p, mock, _, _ := newTestProvisioner(t)
	ctx := context.Background()
	deploymentID := uuid.New()
	projectID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "deployment_events"`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "deployments" SET "status"`).
		WithArgs(string(domain.StatusFailed), sqlmock.AnyArg(), deploymentID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ack := &fakeAcknowledger{}
	delivery := amqp.Delivery{Acknowledger: ack, DeliveryTag: 1}

	p.giveUp(ctx, delivery, projectID, deploymentID, "create")
	require.Equal(t, 1, ack.acked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleCreateDelivery_RejectsBadPort(t *testing.T) {
	p, mock, _, _ := newTestProvisioner(t)
	ctx := context.Background()

	item := domain.CreateWorkItem{
		UserID: uuid.New(), ProjectID: uuid.New(), DeploymentID: uuid.New(),
		Name: "web", Image: "nginx:1.25", Port: 0, DesiredReplicas: 1,
		ResourceSpec: domain.DefaultResourceSpec(),
	}
	body, err := json.Marshal(item)
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	delivery := amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}

	p.handleCreateDelivery(ctx, delivery)
	require.Equal(t, 1, ack.rejected)
	require.Equal(t, 0, ack.nacked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleUpdateDelivery_RejectsBadReplicaCount(t *testing.T) {
	p, mock, _, _ := newTestProvisioner(t)
	ctx := context.Background()

	tooMany := int32(99)
	item := domain.UpdateWorkItem{
		UserID: uuid.New(), ProjectID: uuid.New(), DeploymentID: uuid.New(),
		DesiredReplicas: &tooMany,
	}
	body, err := json.Marshal(item)
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	delivery := amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}

	p.handleUpdateDelivery(ctx, delivery)
	require.Equal(t, 1, ack.rejected)
	require.Equal(t, 0, ack.nacked)
	require.NoError(t, mock.ExpectationsWereMet())
}
