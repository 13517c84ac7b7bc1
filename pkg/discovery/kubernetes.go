// Copyright 2024 The voltmq-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package discovery

import (
	"context"
	"fmt"
	"os"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// KubeSource discovers peer registries through the Kubernetes API: all
// pods behind the same headless service are cluster members.
type KubeSource struct {
	clientset *kubernetes.Clientset
	namespace string
	service   string
	portName  string
}

// NewKubeSource configures discovery from inside a pod using the
// service account.
func NewKubeSource(namespace, service, portName string) (*KubeSource, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("could not get in-cluster config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("could not create clientset: %w", err)
	}

	return &KubeSource{
		clientset: clientset,
		namespace: namespace,
		service:   service,
		portName:  portName,
	}, nil
}

// Members implements Source by listing the endpoints of the configured
// service and excluding the local pod.
func (k *KubeSource) Members(ctx context.Context) ([]Member, error) {
	endpoints, err := k.clientset.CoreV1().Endpoints(k.namespace).Get(ctx, k.service, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoints for service %s: %w", k.service, err)
	}

	var members []Member
	hostname, _ := os.Hostname()

	for _, subset := range endpoints.Subsets {
		var port int32
		for _, p := range subset.Ports {
			if p.Name == k.portName {
				port = p.Port
				break
			}
		}
		if port == 0 {
			continue
		}

		for _, addr := range subset.Addresses {
			if addr.Hostname != "" && addr.Hostname == hostname {
				continue
			}
			members = append(members, Member{
				ID:      addr.Hostname,
				Address: fmt.Sprintf("%s:%d", addr.IP, port),
			})
		}
	}

	return members, nil
}
